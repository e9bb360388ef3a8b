package vmm

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/sigreer/bootgod/internal/bootspec"
	"golang.org/x/sys/unix"
)

// Extra option keys the supervisor interprets. Anything else in
// profile.Extra is informational and left out of the invocation.
const (
	ExtraDisplay      = "display"       // "gtk" (default), "sdl", "none"
	ExtraUEFICode     = "uefi-code"     // OVMF firmware image path
	ExtraDisableKVM   = "no-kvm"        // any value forces TCG
	ExtraDisableNet   = "no-net"        // any value drops user networking
	ExtraImageFormat  = "image-format"  // overrides sniffed -drive format
	ExtraBootOverride = "boot-override" // overrides the -boot order
)

const defaultUEFICode = "/usr/share/OVMF/OVMF_CODE.fd"

// findQEMU locates the emulator binary: explicit override, then
// BOOTGOD_QEMU, then the usual candidates on PATH.
func findQEMU(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return override, nil
		}
		if path, err := exec.LookPath(override); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("configured emulator %q not found", override)
	}

	if path := os.Getenv("BOOTGOD_QEMU"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("BOOTGOD_QEMU set to %q but file not found", path)
	}

	candidates := []string{
		"qemu-system-x86_64",
		"qemu-kvm",
		"qemu-system-i386",
	}
	for _, binary := range candidates {
		if path, err := exec.LookPath(binary); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no QEMU binary found in PATH; install qemu-system-x86")
}

// Invocation returns the exact emulator command line for a
// source/profile pair without starting anything. Used for dry runs.
func Invocation(binaryOverride string, src bootspec.BootSource, profile *bootspec.BootProfile) (string, []string, error) {
	binary, err := findQEMU(binaryOverride)
	if err != nil {
		return "", nil, err
	}
	return binary, buildArgs(src, profile, kvmAvailable()), nil
}

// kvmAvailable reports whether /dev/kvm exists and is usable by this
// process.
func kvmAvailable() bool {
	return unix.Access("/dev/kvm", unix.R_OK|unix.W_OK) == nil
}

// buildArgs constructs the QEMU argument list. The invocation is fully
// deterministic for a given source/profile pair; nothing is read from
// the environment.
func buildArgs(src bootspec.BootSource, profile *bootspec.BootProfile, useKVM bool) []string {
	args := []string{
		"-m", strconv.Itoa(profile.MemoryMB),
		"-smp", strconv.Itoa(profile.CPUs),
	}

	if useKVM && profile.Extra[ExtraDisableKVM] == "" {
		args = append(args, "-accel", "kvm", "-cpu", "host")
	} else {
		args = append(args, "-accel", "tcg")
	}

	if profile.Firmware == bootspec.FirmwareUEFI {
		code := profile.Extra[ExtraUEFICode]
		if code == "" {
			code = defaultUEFICode
		}
		args = append(args, "-bios", code)
	}

	args = append(args, bootMediaArgs(src, profile)...)

	display := profile.Extra[ExtraDisplay]
	if display == "" {
		display = "gtk"
	}
	args = append(args, "-display", display, "-vga", "std")

	// Better pointer integration, same defaults as the desktop runner
	args = append(args, "-usb", "-device", "usb-tablet")

	if profile.Extra[ExtraDisableNet] == "" {
		args = append(args, "-netdev", "user,id=net0", "-device", "rtl8139,netdev=net0")
	}

	args = append(args, "-no-reboot")
	return args
}

// bootMediaArgs attaches the boot source. ISOs go in as CD-ROM with
// boot order d; everything else is a drive on the resolved interface.
func bootMediaArgs(src bootspec.BootSource, profile *bootspec.BootProfile) []string {
	if override := profile.Extra[ExtraBootOverride]; override != "" {
		return []string{"-boot", override, "-drive", driveSpec(src, profile)}
	}

	if src.ImagePath != "" && profile.Extra[ExtraImageFormat] == "" {
		if f, err := os.Open(src.ImagePath); err == nil {
			kind := bootspec.SniffContainer(f)
			f.Close()
			if kind == bootspec.ContainerISO {
				return []string{"-boot", "d", "-cdrom", src.ImagePath}
			}
		}
	}

	return []string{"-boot", "c", "-drive", driveSpec(src, profile)}
}

func driveSpec(src bootspec.BootSource, profile *bootspec.BootProfile) string {
	format := "raw"
	if src.ImagePath != "" {
		if override := profile.Extra[ExtraImageFormat]; override != "" {
			format = override
		} else if f, err := os.Open(src.ImagePath); err == nil {
			format = bootspec.SniffContainer(f).QEMUFormat()
			f.Close()
		}
	}
	return fmt.Sprintf("file=%s,format=%s,if=%s", src.Path(), format, string(profile.Interface))
}
