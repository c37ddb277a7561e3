// Completion: 100% - Target selection complete
package engine

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Architecture type
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_64
	ArchARM64
	ArchRiscv64
	Arch386
	ArchARM
)

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	case ArchRiscv64:
		return "riscv64"
	case Arch386:
		return "i386"
	case ArchARM:
		return "arm"
	default:
		return "unknown"
	}
}

// ParseArch parses an architecture string (like GOARCH values)
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "x86-64":
		return ArchX86_64, nil
	case "aarch64", "arm64":
		return ArchARM64, nil
	case "riscv64", "riscv", "rv64":
		return ArchRiscv64, nil
	case "i386", "386", "x86", "i686":
		return Arch386, nil
	case "arm", "armv7", "arm32":
		return ArchARM, nil
	default:
		return 0, fmt.Errorf("unsupported architecture: %s (supported: amd64, arm64, riscv64, 386, arm)", s)
	}
}

// Is64Bit reports whether general purpose registers are 64 bits wide.
// 64-bit targets box a value into a single word; 32-bit targets keep the
// type tag and the payload in two separate words.
func (a Arch) Is64Bit() bool {
	switch a {
	case ArchX86_64, ArchARM64, ArchRiscv64:
		return true
	default:
		return false
	}
}

// ByteOrder of the target. Every supported target is little-endian.
func (a Arch) ByteOrder() binary.ByteOrder {
	return binary.LittleEndian
}

// OS type
type OS int

const (
	OSLinux OS = iota
	OSDarwin
	OSFreeBSD
	OSWindows
)

func (o OS) String() string {
	switch o {
	case OSLinux:
		return "linux"
	case OSDarwin:
		return "darwin"
	case OSFreeBSD:
		return "freebsd"
	case OSWindows:
		return "windows"
	default:
		return "unknown"
	}
}

// ParseOS parses an OS string (like GOOS values)
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(s) {
	case "linux":
		return OSLinux, nil
	case "darwin", "macos":
		return OSDarwin, nil
	case "freebsd":
		return OSFreeBSD, nil
	case "windows", "win", "wine":
		return OSWindows, nil
	default:
		return 0, fmt.Errorf("unsupported OS: %s (supported: linux, darwin, freebsd, windows)", s)
	}
}

// Platform represents a target platform (architecture + OS)
type Platform struct {
	Arch Arch
	OS   OS
}

// ParsePlatform parses "arch-os" strings such as "x86_64-linux".
func ParsePlatform(s string) (Platform, error) {
	archPart, osPart, ok := strings.Cut(s, "-")
	if !ok {
		return Platform{}, fmt.Errorf("invalid platform %q (expected arch-os)", s)
	}
	// "x86-64-linux" carries a dash inside the arch name
	if strings.EqualFold(archPart, "x86") && strings.HasPrefix(osPart, "64-") {
		archPart, osPart = "x86_64", strings.TrimPrefix(osPart, "64-")
	}
	arch, err := ParseArch(archPart)
	if err != nil {
		return Platform{}, err
	}
	os, err := ParseOS(osPart)
	if err != nil {
		return Platform{}, err
	}
	return Platform{Arch: arch, OS: os}, nil
}

// String returns a human-readable platform string
func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.Arch, p.OS)
}

// FullString returns a detailed platform string
func (p Platform) FullString() string {
	return fmt.Sprintf("%s on %s", p.Arch, p.OS)
}
