// Completion: 100% - Host detection complete
package engine

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// HostPlatform returns the platform the compiler itself runs on
func HostPlatform() Platform {
	var arch Arch
	switch runtime.GOARCH {
	case "amd64":
		arch = ArchX86_64
	case "arm64":
		arch = ArchARM64
	case "riscv64":
		arch = ArchRiscv64
	case "386":
		arch = Arch386
	case "arm":
		arch = ArchARM
	default:
		arch = ArchX86_64 // fallback
	}

	var os OS
	switch runtime.GOOS {
	case "linux":
		os = OSLinux
	case "darwin":
		os = OSDarwin
	case "freebsd":
		os = OSFreeBSD
	case "windows":
		os = OSWindows
	default:
		os = OSLinux // fallback
	}

	return Platform{Arch: arch, OS: os}
}

// HostInfo summarizes what the host CPU offers
type HostInfo struct {
	Platform  Platform
	BigEndian bool
	Features  []string
}

// CanExecute reports whether code for p could run natively on this host.
// Every supported target is little-endian, so a big-endian host never can.
func (h HostInfo) CanExecute(p Platform) bool {
	return !h.BigEndian && h.Platform.Arch == p.Arch
}

// Host inspects the running CPU
func Host() HostInfo {
	info := HostInfo{Platform: HostPlatform(), BigEndian: cpu.IsBigEndian}
	add := func(name string, ok bool) {
		if ok {
			info.Features = append(info.Features, name)
		}
	}
	switch info.Platform.Arch {
	case ArchX86_64, Arch386:
		add("sse2", cpu.X86.HasSSE2)
		add("sse4.1", cpu.X86.HasSSE41)
		add("popcnt", cpu.X86.HasPOPCNT)
		add("avx", cpu.X86.HasAVX)
		add("avx2", cpu.X86.HasAVX2)
		add("bmi2", cpu.X86.HasBMI2)
	case ArchARM64:
		add("asimd", cpu.ARM64.HasASIMD)
		add("atomics", cpu.ARM64.HasATOMICS)
		add("crc32", cpu.ARM64.HasCRC32)
	case ArchARM:
		add("vfpv3", cpu.ARM.HasVFPv3)
		add("neon", cpu.ARM.HasNEON)
	}
	return info
}
