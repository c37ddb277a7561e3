package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xyproto/jitframe/internal/bytecode"
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/frame"
	"github.com/xyproto/jitframe/internal/jit"
)

const testdata = "internal/jit/testdata"

func runCLI(t *testing.T, cfg *Config, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	if cfg == nil {
		cfg = &Config{Target: "x86_64-linux"}
	}
	err = RunCLI(&CommandContext{Args: args, Config: cfg, Stdout: &out, Stderr: &errOut})
	return out.String(), errOut.String(), err
}

func writeScript(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionAndHelp(t *testing.T) {
	out, _, err := runCLI(t, nil, "version")
	if err != nil || out != versionString+"\n" {
		t.Errorf("version printed %q, %v", out, err)
	}
	out, _, err = runCLI(t, nil)
	if err != nil || !strings.Contains(out, "USAGE:") {
		t.Errorf("help printed %q, %v", out, err)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := runCLI(t, nil, "chek")
	if err == nil || !strings.Contains(err.Error(), "did you mean check") {
		t.Errorf("got %v", err)
	}
}

func TestCheckAllTargets(t *testing.T) {
	out, stderr, err := runCLI(t, &Config{Target: "all", Debug: true}, "check", testdata)
	if err != nil {
		t.Fatalf("%v\n%s", err, stderr)
	}
	files, _ := filepath.Glob(filepath.Join(testdata, "*.yaml"))
	want := fmt.Sprintf("All checks passed (%d/%d)", len(files)*5, len(files)*5)
	if !strings.Contains(out, want) {
		t.Errorf("output lacks %q:\n%s", want, out)
	}
	if !strings.Contains(out, "✓ sum_loop (i386-linux)") {
		t.Errorf("output lacks the i386 loop:\n%s", out)
	}
}

func TestCheckReportsBadScripts(t *testing.T) {
	dir := t.TempDir()
	bad := "name: bad\ncode:\n  - getlocl 0\n"
	wrong := "name: wrong\ncode: [int 2, return]\nrun:\n  expect: 3\n"
	for name, src := range map[string]string{"bad.yaml": bad, "wrong.yaml": wrong} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	out, stderr, err := runCLI(t, nil, "check", dir)
	if err == nil || err.Error() != "2 of 2 checks failed" {
		t.Fatalf("got %v", err)
	}
	for _, want := range []string{"unknown opcode", "help: Did you mean: getlocal", "3 |   - getlocl 0", "wrong returned 2, expected 3", "2 error(s) found"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("report lacks %q:\n%s", want, stderr)
		}
	}
	if !strings.Contains(out, "✗ wrong (x86_64-linux)") {
		t.Errorf("output: %s", out)
	}
}

func TestRun(t *testing.T) {
	abs := filepath.Join(testdata, "abs.yaml")
	out, _, err := runCLI(t, nil, "run", abs)
	if err != nil || out != "9\n" {
		t.Errorf("run printed %q, %v", out, err)
	}
	out, _, err = runCLI(t, &Config{Target: "arm-linux"}, abs, "-12")
	if err != nil || out != "12\n" {
		t.Errorf("run with args printed %q, %v", out, err)
	}
	if _, _, err = runCLI(t, nil, "run", abs, "1", "2"); err == nil {
		t.Error("too many arguments accepted")
	}
}

func TestRunReportsDivideByZero(t *testing.T) {
	path := writeScript(t, "div.yaml", "args: 1\ncode: [int 1, getarg 0, div, return]\n")
	_, stderr, err := runCLI(t, nil, "run", path, "0")
	if !errors.Is(err, errReported) || !strings.Contains(stderr, "division by zero") {
		t.Errorf("got %v:\n%s", err, stderr)
	}
}

func TestBuildDump(t *testing.T) {
	var out bytes.Buffer
	ctx := &CommandContext{
		Args:   []string{"build", filepath.Join(testdata, "sum_loop.yaml")},
		Config: &Config{Target: "riscv64-linux"},
		Dump:   true,
		Stdout: &out,
		Stderr: &bytes.Buffer{},
	}
	if err := RunCLI(ctx); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"compiled for riscv64-linux", "; bytecode\n", "top:", "; code\n", "; snapshot top: depth 0, 0 registers"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dump lacks %q:\n%s", want, out.String())
		}
	}
}

func TestInfo(t *testing.T) {
	out, _, err := runCLI(t, &Config{Target: "i386-linux"}, "info")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"host:", "target:      i386-linux", "split"} {
		if !strings.Contains(out, want) {
			t.Errorf("info lacks %q:\n%s", want, out)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jitframe.toml")
	src := "target = \"aarch64-darwin\"\nregisters = [\"x0\", \"x1\"]\nuncopy = \"frame\"\nmax-entries = 64\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JITFRAME_MAX_ENTRIES", "128")
	t.Setenv("JITFRAME_DEBUG", "1")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target != "aarch64-darwin" || cfg.MaxEntries != 128 || !cfg.Debug {
		t.Errorf("config = %+v", cfg)
	}
	if walk, err := cfg.UncopyWalk(); err != nil || walk != frame.WalkFrame {
		t.Errorf("walk = %v, %v", walk, err)
	}
	rfs, err := cfg.RegisterFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(rfs) != 1 || rfs[0].Avail != engine.MaskOf(0, 1) {
		t.Errorf("registers = %+v", rfs)
	}

	t.Setenv("JITFRAME_TARGET", "i386-linux")
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.RegisterFiles(); err == nil || !strings.Contains(err.Error(), `no register "x0"`) {
		t.Errorf("i386 with x0: %v", err)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing explicit config accepted")
	}
	if _, err := (&Config{Uncopy: "sideways"}).UncopyWalk(); err == nil {
		t.Error("unknown walk accepted")
	}
}

func TestClassifyError(t *testing.T) {
	_, err := bytecode.Parse("x.yaml", []byte("code: [getargg 0]\n"))
	ce := ClassifyError("x.yaml", err)
	if ce.Category != CategorySyntax || ce.Location.Line != 1 || ce.Context.Suggestion == "" {
		t.Errorf("syntax error classified as %+v", ce)
	}

	_, err = bytecode.Parse("x.yaml", []byte("code: [pop]\n"))
	if ce := ClassifyError("x.yaml", err); ce.Category != CategoryBytecode || ce.Level != LevelError {
		t.Errorf("invalid bytecode classified as %+v", ce)
	}

	ce = ClassifyError("x.yaml", fmt.Errorf("%w: too big", jit.ErrNotCompilable))
	if ce.Level != LevelWarning || ce.Category != CategoryCodegen {
		t.Errorf("not compilable classified as %+v", ce)
	}

	plain := ce.Format(false)
	if strings.Contains(plain, "\033[") || !strings.HasPrefix(plain, "warning: ") {
		t.Errorf("plain format: %q", plain)
	}
	if !strings.Contains(ce.Format(true), "\033[1;33m") {
		t.Error("colored warning lacks yellow")
	}
}
