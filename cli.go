// Completion: 100% - CLI complete
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/xyproto/jitframe/internal/bytecode"
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/jit"
	"github.com/xyproto/jitframe/internal/value"
)

// cli.go - command-line interface for jitframe
//
// Subcommands:
// - jitframe run <script.yaml> [args...] (compile and run on the simulated machine)
// - jitframe build <script.yaml> (compile and show the generated code)
// - jitframe check [files or directories] (compile and check every script's expectation)
// - jitframe info (show the register files and the host CPU)
// - jitframe <script.yaml> (shorthand for run)

var log = commonlog.GetLogger("jitframe.cli")

// errReported means the details were already written to stderr
var errReported = errors.New("errors reported")

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Args     []string
	Config   *Config
	Verbose  bool
	Quiet    bool
	Dump     bool
	UseColor bool
	Stdout   io.Writer
	Stderr   io.Writer
}

// RunCLI is the main entry point for the CLI.
// It determines which command to run based on arguments.
func RunCLI(ctx *CommandContext) error {
	if ctx.Stdout == nil {
		ctx.Stdout = os.Stdout
	}
	if ctx.Stderr == nil {
		ctx.Stderr = os.Stderr
	}
	if ctx.Config == nil {
		ctx.Config = &Config{}
	}
	args := ctx.Args
	if len(args) == 0 {
		return cmdHelp(ctx)
	}

	subcmd := args[0]
	switch subcmd {
	case "run":
		if len(args) < 2 {
			return fmt.Errorf("usage: jitframe run <script.yaml> [args...]")
		}
		return cmdRun(ctx, args[1], args[2:])

	case "build":
		if len(args) != 2 {
			return fmt.Errorf("usage: jitframe build <script.yaml>")
		}
		return cmdBuild(ctx, args[1])

	case "check", "test":
		return cmdCheck(ctx, args[1:])

	case "info":
		return cmdInfo(ctx)

	case "help", "--help", "-h":
		return cmdHelp(ctx)

	case "version", "--version", "-V":
		fmt.Fprintln(ctx.Stdout, versionString)
		return nil

	default:
		if isScript(subcmd) {
			return cmdRun(ctx, subcmd, args[1:])
		}
		if info, err := os.Stat(subcmd); err == nil && info.IsDir() {
			return cmdCheck(ctx, args)
		}
		msg := fmt.Sprintf("unknown command: %s", subcmd)
		if similar := engine.FindSimilar(subcmd, commandNames, 2); len(similar) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(similar, " or "))
		}
		return fmt.Errorf("%s\n\nRun 'jitframe help' for usage information", msg)
	}
}

var commandNames = []string{"build", "check", "help", "info", "run", "test", "version"}

func isScript(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// options builds compiler options for one register file
func (ctx *CommandContext) options(rf *engine.RegisterFile) (jit.Options, error) {
	walk, err := ctx.Config.UncopyWalk()
	if err != nil {
		return jit.Options{}, err
	}
	opts := jit.Options{
		Registers:  rf,
		MaxEntries: ctx.Config.MaxEntries,
		Uncopy:     walk,
		Debug:      ctx.Config.Debug,
	}
	if ctx.Verbose {
		opts.Trace = ctx.Stderr
	}
	return opts, nil
}

// report prints err the way it would appear in a check summary
func (ctx *CommandContext) report(file string, err error) error {
	ec := NewErrorCollector()
	if data, rerr := os.ReadFile(file); rerr == nil {
		ec.SetSource(file, data)
	}
	ec.Add(ClassifyError(file, err))
	fmt.Fprint(ctx.Stderr, ec.Report(ctx.UseColor))
	return errReported
}

// compileFirst loads a script and compiles it for the first configured target
func (ctx *CommandContext) compileFirst(path string) (*jit.Result, error) {
	rfs, err := ctx.Config.RegisterFiles()
	if err != nil {
		return nil, err
	}
	s, err := bytecode.Load(path)
	if err != nil {
		return nil, ctx.report(path, err)
	}
	if len(rfs) > 1 && !ctx.Quiet {
		fmt.Fprintf(ctx.Stderr, "using %s of %d targets\n", rfs[0].Platform, len(rfs))
	}
	opts, err := ctx.options(rfs[0])
	if err != nil {
		return nil, err
	}
	log.Debugf("options for %s: %+v", path, ctx.Config)
	res, err := jit.Compile(s, opts)
	if err != nil {
		return nil, ctx.report(path, err)
	}
	return res, nil
}

// cmdRun compiles a script and runs it, with args replacing the script's
// own arguments
func cmdRun(ctx *CommandContext, path string, args []string) error {
	res, err := ctx.compileFirst(path)
	if err != nil {
		return err
	}
	run := &bytecode.Run{This: value.Undefined(), CallResult: value.Undefined()}
	if res.Script.Run != nil {
		r := *res.Script.Run
		run = &r
	}
	if len(args) > 0 {
		if len(args) > res.Script.NArgs {
			return fmt.Errorf("%s takes %d arguments, got %d", res.Script.Name, res.Script.NArgs, len(args))
		}
		run.Args = nil
		for _, a := range args {
			v, err := bytecode.ParseLiteral(a)
			if err != nil {
				return fmt.Errorf("argument %q: %w", a, err)
			}
			run.Args = append(run.Args, v)
		}
		run.HasExpect = false
	}

	if ctx.Dump {
		dump(ctx, res)
	}
	got, m, err := res.Execute(run)
	if err != nil {
		return ctx.report(path, fmt.Errorf("%w: %w", errRunFailed, err))
	}
	fmt.Fprintln(ctx.Stdout, got)
	if ctx.Verbose {
		fmt.Fprintf(ctx.Stderr, "executed %d instructions, %d calls\n", m.Steps, len(m.Calls))
	}
	if run.HasExpect && got != run.Expect {
		return fmt.Errorf("%s returned %s, expected %s", res.Script.Name, got, run.Expect)
	}
	return nil
}

// cmdBuild compiles a script and prints the bytecode next to the code
func cmdBuild(ctx *CommandContext, path string) error {
	res, err := ctx.compileFirst(path)
	if err != nil {
		return err
	}
	dump(ctx, res)
	return nil
}

func dump(ctx *CommandContext, res *jit.Result) {
	w := ctx.Stdout
	fmt.Fprintf(w, "; %s compiled for %s (%s)\n", res.Script.Name, res.Registers.Platform, res.ID)
	fmt.Fprintf(w, "; bytecode\n%s", res.Script.Listing())
	fmt.Fprintf(w, "; code\n%s", res.Listing())
	if !ctx.Dump {
		return
	}
	for _, snap := range res.Snapshots {
		data, err := snap.Encode()
		if err != nil {
			fmt.Fprintf(w, "; %s: %v\n", snap.Label, err)
			continue
		}
		fmt.Fprintf(w, "; snapshot %s: depth %d, %d registers, %d bytes %s\n",
			snap.Label, snap.SP, len(snap.Regs), len(data), hex.EncodeToString(data))
	}
}

// collectScripts expands directories into the scripts they hold
func collectScripts(paths []string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("file not found: %s", p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && isScript(e.Name()) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no scripts found in %s", strings.Join(paths, ", "))
	}
	return files, nil
}

// cmdCheck compiles every script for every configured target and checks
// each against its expectation
func cmdCheck(ctx *CommandContext, paths []string) error {
	files, err := collectScripts(paths)
	if err != nil {
		return err
	}
	rfs, err := ctx.Config.RegisterFiles()
	if err != nil {
		return err
	}

	ec := NewErrorCollector()
	total, passed := 0, 0
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		ec.SetSource(file, data)
		log.Infof("checking %s on %d targets", file, len(rfs))
		s, err := bytecode.Parse(file, data)
		if err != nil {
			total++
			ec.Add(ClassifyError(file, err))
			continue
		}
		for _, rf := range rfs {
			total++
			opts, err := ctx.options(rf)
			if err != nil {
				return err
			}
			res, err := jit.Compile(s, opts)
			if err == nil {
				_, err = res.Check()
				if err != nil {
					err = fmt.Errorf("%w on %s: %w", errRunFailed, rf.Platform, err)
				}
			}
			if err != nil {
				if !ctx.Quiet {
					fmt.Fprintf(ctx.Stdout, "✗ %s (%s)\n", s.Name, rf.Platform)
				}
				ec.Add(ClassifyError(file, err))
				continue
			}
			passed++
			if !ctx.Quiet {
				fmt.Fprintf(ctx.Stdout, "✓ %s (%s)\n", s.Name, rf.Platform)
			}
		}
	}

	if report := ec.Report(ctx.UseColor); report != "" {
		fmt.Fprint(ctx.Stderr, report)
	}
	if ec.HasErrors() {
		return fmt.Errorf("%d of %d checks failed", ec.ErrorCount(), total)
	}
	if !ctx.Quiet {
		fmt.Fprintf(ctx.Stdout, "\n✓ All checks passed (%d/%d)\n", passed, total)
	}
	return nil
}

// cmdInfo shows the register files for the configured targets
func cmdInfo(ctx *CommandContext) error {
	rfs, err := ctx.Config.RegisterFiles()
	if err != nil {
		return err
	}
	host := engine.Host()
	fmt.Fprintf(ctx.Stdout, "host:        %s", host.Platform.FullString())
	if len(host.Features) > 0 {
		fmt.Fprintf(ctx.Stdout, " (%s)", strings.Join(host.Features, " "))
	}
	fmt.Fprintln(ctx.Stdout)
	for _, rf := range rfs {
		fmt.Fprintln(ctx.Stdout)
		fmt.Fprint(ctx.Stdout, rf.Describe())
		if !host.CanExecute(rf.Platform) {
			fmt.Fprintln(ctx.Stdout, "native:      no, simulated only")
		}
	}
	return nil
}

// cmdHelp displays usage information
func cmdHelp(ctx *CommandContext) error {
	fmt.Fprintf(ctx.Stdout, `%s - frame state register allocation for a stack machine

USAGE:
    jitframe [flags] <command> [arguments]

COMMANDS:
    run <script.yaml> [args...]   Compile a script and run it on the simulated machine
    build <script.yaml>           Compile a script and show the generated code
    check [paths...]              Compile every script and check its expected result
    info                          Show the register files and the host CPU
    help                          Show this help message
    version                       Show version information

SHORTHAND:
    jitframe <script.yaml>        Same as 'jitframe run <script.yaml>'
    jitframe <directory>          Same as 'jitframe check <directory>'

FLAGS (must come before the command):
    -v, -verbose           Trace the frame state after every instruction
    -q, -quiet             Only report failures
    -debug                 Validate the frame state after every operation
    -dump                  Show the code and label snapshots when running
    -target <platform>     Target platform: x86_64-linux, aarch64-darwin, all (default: host)
    -arch <arch>           Target architecture, combined with -os
    -os <os>               Target OS (default: linux)
    -registers <list>      Only allocate these registers, e.g. rax,rcx,rdx
    -max-entries <n>       Give up on frames with more entries
    -uncopy <walk>         Copy search on overwrite: auto, tracker, frame
    -config <file>         Settings file (default: ./%s if present)
    -log <file>            Write log messages to a file

ENVIRONMENT:
    JITFRAME_TARGET, JITFRAME_REGISTERS, JITFRAME_MAX_ENTRIES, JITFRAME_UNCOPY,
    JITFRAME_DEBUG, JITFRAME_VERBOSITY, JITFRAME_LOG

EXAMPLES:
    jitframe run sum_loop.yaml 100
    jitframe -target i386-linux build abs.yaml
    jitframe -target all check internal/jit/testdata
    jitframe -registers rax,rcx,rdx,rsi check .

`, versionString, defaultConfigFile)
	return nil
}
