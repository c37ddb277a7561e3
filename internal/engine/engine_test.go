package engine

import "testing"

// TestParseArch tests architecture name aliases
func TestParseArch(t *testing.T) {
	tests := []struct {
		in   string
		want Arch
	}{
		{"amd64", ArchX86_64},
		{"x86_64", ArchX86_64},
		{"arm64", ArchARM64},
		{"rv64", ArchRiscv64},
		{"386", Arch386},
		{"armv7", ArchARM},
	}
	for _, tt := range tests {
		got, err := ParseArch(tt.in)
		if err != nil {
			t.Fatalf("ParseArch(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseArch(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if _, err := ParseArch("mips"); err == nil {
		t.Error("expected an error for mips")
	}
}

// TestParsePlatform tests arch-os parsing
func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("arm64-darwin")
	if err != nil {
		t.Fatal(err)
	}
	if p.Arch != ArchARM64 || p.OS != OSDarwin {
		t.Errorf("got %s", p)
	}
	p, err = ParsePlatform("x86-64-windows")
	if err != nil {
		t.Fatal(err)
	}
	if p.Arch != ArchX86_64 || p.OS != OSWindows {
		t.Errorf("got %s", p)
	}
	if _, err := ParsePlatform("linux"); err == nil {
		t.Error("expected an error without a dash")
	}
}

// TestRegisterFiles checks the reserved registers are never allocatable
func TestRegisterFiles(t *testing.T) {
	for _, arch := range SupportedArchs() {
		rf, err := RegistersFor(Platform{Arch: arch, OS: OSLinux})
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}
		if rf.Avail.Has(rf.FrameReg) {
			t.Errorf("%s: frame register %s is allocatable", arch, rf.Name(rf.FrameReg))
		}
		if rf.ValueReg != NoReg && rf.Avail.Has(rf.ValueReg) {
			t.Errorf("%s: value register %s is allocatable", arch, rf.Name(rf.ValueReg))
		}
		if rf.Unified() != (rf.ValueReg != NoReg) {
			t.Errorf("%s: unified targets need a value register", arch)
		}
		if !rf.Avail.Has(rf.ReturnTypeReg) || !rf.Avail.Has(rf.ReturnDataReg) {
			t.Errorf("%s: return registers must be allocatable", arch)
		}
		if rf.Temp&rf.Saved != 0 {
			t.Errorf("%s: temp and saved sets overlap", arch)
		}
		if len(rf.Names) > MaxRegs {
			t.Errorf("%s: %d registers do not fit a mask", arch, len(rf.Names))
		}
	}
}

// TestWindowsSavedRegs tests the Microsoft x64 ABI adjustment
func TestWindowsSavedRegs(t *testing.T) {
	rf, err := RegistersFor(Platform{Arch: ArchX86_64, OS: OSWindows})
	if err != nil {
		t.Fatal(err)
	}
	rsi, _ := rf.Lookup("rsi")
	if rf.Temp.Has(rsi) || !rf.Saved.Has(rsi) {
		t.Error("rsi should be callee-saved on windows")
	}
}

// TestRegMask tests the bitmask helpers
func TestRegMask(t *testing.T) {
	m := MaskOf(3, 1, 7)
	if m.Count() != 3 {
		t.Errorf("Count = %d", m.Count())
	}
	if m.First() != 1 {
		t.Errorf("First = %d", m.First())
	}
	regs := m.Without(1).Regs()
	if len(regs) != 2 || regs[0] != 3 || regs[1] != 7 {
		t.Errorf("Regs = %v", regs)
	}
	if RegMask(0).First() != NoReg {
		t.Error("empty mask should have no first register")
	}
}

// TestRestrict tests narrowing the allocatable set
func TestRestrict(t *testing.T) {
	rf, _ := RegistersFor(Platform{Arch: ArchX86_64})
	small := rf.Restrict(MaskOf(0, 1))
	if small.Avail != MaskOf(0, 1) {
		t.Errorf("Avail = %s", small.Avail.Format(small))
	}
	if rf.Avail == small.Avail {
		t.Error("Restrict must not modify the original")
	}
}

// TestFindSimilar tests suggestion ordering and the distance threshold
func TestFindSimilar(t *testing.T) {
	names := []string{"getlocal", "setlocal", "getarg", "return", "ifeq", "ifne"}
	got := FindSimilar("getlocl", names, 2)
	if len(got) != 2 || got[0] != "getlocal" || got[1] != "setlocal" {
		t.Errorf("FindSimilar(getlocl) = %v", got)
	}
	if got := FindSimilar("ifeq", names, 3); len(got) != 1 || got[0] != "ifne" {
		t.Errorf("an exact match must not be suggested, got %v", got)
	}
	if got := FindSimilar("enterblock", names, 3); len(got) != 0 {
		t.Errorf("FindSimilar(enterblock) = %v, want none", got)
	}
	if d := levenshteinDistance("kitten", "sitting"); d != 3 {
		t.Errorf("levenshteinDistance = %d, want 3", d)
	}
}
