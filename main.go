// Completion: 100% - CLI flags and configuration complete
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/xyproto/env/v2"

	"github.com/xyproto/jitframe/internal/engine"
)

// Frame state register allocation for a baseline stack machine compiler,
// targeting x86_64, aarch64, riscv64, i386 and arm

const versionString = "jitframe 1.0.0"

// Global flags for controlling output verbosity
var VerboseMode bool
var QuietMode bool

// useColor reports whether stderr should get ANSI colors
func useColor() bool {
	if env.Has("NO_COLOR") {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func main() {
	// NOTE: Go's flag package stops parsing at the first non-flag argument
	// So flags must come BEFORE the command: jitframe -target all check .
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var verbose = flag.Bool("v", false, "verbose mode (trace the frame state after every instruction)")
	var verboseLong = flag.Bool("verbose", false, "verbose mode (trace the frame state after every instruction)")
	var quiet = flag.Bool("q", false, "quiet mode (only report failures)")
	var quietLong = flag.Bool("quiet", false, "quiet mode (only report failures)")
	var debugFlag = flag.Bool("debug", false, "validate the frame state after every operation")
	var dumpFlag = flag.Bool("dump", false, "show the code and label snapshots")
	var targetFlag = flag.String("target", "", "target platform (e.g., x86_64-linux, arm-linux, all)")
	var archFlag = flag.String("arch", "", "target architecture (x86_64, aarch64, riscv64, i386, arm)")
	var osFlag = flag.String("os", "linux", "target OS (linux, darwin, freebsd, windows)")
	var registersFlag = flag.String("registers", "", "comma separated registers the allocator may use")
	var maxEntriesFlag = flag.Int("max-entries", 0, "largest frame to compile (0 for no limit)")
	var uncopyFlag = flag.String("uncopy", "", "copy search on overwrite (auto, tracker, frame)")
	var configFlag = flag.String("config", "", "settings file (default: ./"+defaultConfigFile+" if present)")
	var logFlag = flag.String("log", "", "write log messages to this file")
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	// Set global verbosity flags (use whichever was specified)
	VerboseMode = *verbose || *verboseLong
	QuietMode = *quiet || *quietLong

	cfg, err := LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line win over the file and the environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "target":
			cfg.Target = *targetFlag
		case "arch":
			cfg.Target = *archFlag + "-" + *osFlag
		case "os":
			if *archFlag == "" && *targetFlag == "" {
				cfg.Target = engine.HostPlatform().Arch.String() + "-" + *osFlag
			}
		case "registers":
			cfg.Registers = strings.Split(*registersFlag, ",")
		case "max-entries":
			cfg.MaxEntries = *maxEntriesFlag
		case "uncopy":
			cfg.Uncopy = *uncopyFlag
		case "debug":
			cfg.Debug = *debugFlag
		case "log":
			cfg.LogFile = *logFlag
		}
	})
	if *targetFlag != "" {
		cfg.Target = *targetFlag
	}

	verbosity := cfg.Verbosity
	if VerboseMode {
		verbosity = max(verbosity, 2)
	}
	if cfg.LogFile != "" {
		commonlog.Configure(verbosity, &cfg.LogFile)
	} else {
		commonlog.Configure(verbosity, nil)
	}

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "----=[ %s ]=----\n", versionString)
	}

	ctx := &CommandContext{
		Args:     flag.Args(),
		Config:   cfg,
		Verbose:  VerboseMode,
		Quiet:    QuietMode,
		Dump:     *dumpFlag,
		UseColor: useColor(),
	}
	if err := RunCLI(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
