package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sigreer/bootgod/internal/bootspec"
	"github.com/sigreer/bootgod/internal/config"
	"github.com/sigreer/bootgod/internal/history"
	"github.com/sigreer/bootgod/internal/vmm"
)

var bootCmd = &cobra.Command{
	Use:   "boot <source>",
	Short: "Boot a source in a virtual machine",
	Long: `Boot an ISO/disk image, a /dev/ partition or a whole device in QEMU.
The virtualization profile is resolved from the source's on-disk
signatures, then user overrides from the config file and command line
are applied. Ctrl-C asks the guest to shut down gracefully before
forcing termination.

Examples:
  bootgod boot ubuntu-live.iso
  bootgod boot /dev/nvme0n1p3
  bootgod boot /dev/sdb --memory 4096
  bootgod boot win11.qcow2 --dry-run`,
	Args: cobra.ExactArgs(1),
	Run:  runBoot,
}

func init() {
	bootCmd.Flags().Int("memory", 0, "memory in MB (overrides resolved profile)")
	bootCmd.Flags().Int("cpus", 0, "CPU cores (overrides resolved profile)")
	bootCmd.Flags().String("firmware", "", "firmware: bios or uefi")
	bootCmd.Flags().String("interface", "", "disk interface: ide, virtio, scsi, nvme")
	bootCmd.Flags().Bool("dry-run", false, "print the emulator invocation without starting it")
	bootCmd.Flags().Bool("unmount", false, "unmount the source before booting it")
}

func runBoot(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	src, err := sourceFromArg(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if warnMounted(src) {
		if unmount, _ := cmd.Flags().GetBool("unmount"); unmount {
			if err := unmountSource(src); err != nil {
				fmt.Fprintf(os.Stderr, "Error unmounting source: %v\n", err)
				os.Exit(1)
			}
		} else {
			fmt.Fprintln(os.Stderr, "Warning: source is mounted; the guest sees a live filesystem (use --unmount)")
		}
	}

	profile, err := bootspec.NewResolver().Resolve(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	profile = cfg.ApplyOverrides(profile)
	applyBootFlags(cmd, profile)

	sup := vmm.NewSupervisor()
	sup.Binary = cfg.VM.Binary
	sup.Grace = cfg.Grace()

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		binary, argv, err := vmm.Invocation(sup.Binary, src, profile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(binary + " " + strings.Join(argv, " "))
		return
	}

	if !cfg.History.Disable {
		if db, err := history.New(cfg.History.Path); err == nil {
			defer db.Close()
			sup.Recorder = db
		}
	}

	session, err := sup.Start(context.Background(), src, profile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Session %s started (pid %d), booting %s\n", session.ID, session.PID(), src.Path())

	// First interrupt cancels gracefully, a second one force-exits
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "Shutting down guest...")
		sup.Cancel(session.ID)
	}()

	status, _ := session.Wait(context.Background())
	switch status.State {
	case vmm.StateExited:
		if status.ExitCode != 0 {
			fmt.Fprintf(os.Stderr, "Emulator exited with code %d", status.ExitCode)
			if status.Reason != "" {
				fmt.Fprintf(os.Stderr, ": %s", status.Reason)
			}
			fmt.Fprintln(os.Stderr)
			os.Exit(status.ExitCode)
		}
		fmt.Println("Guest powered off.")
	case vmm.StateCancelled:
		fmt.Println("Session cancelled.")
	case vmm.StateFailed:
		fmt.Fprintf(os.Stderr, "Session failed: %s\n", status.Reason)
		os.Exit(1)
	}
}

func applyBootFlags(cmd *cobra.Command, profile *bootspec.BootProfile) {
	if memory, _ := cmd.Flags().GetInt("memory"); memory > 0 {
		profile.MemoryMB = memory
	}
	if cpus, _ := cmd.Flags().GetInt("cpus"); cpus > 0 {
		profile.CPUs = cpus
	}
	if firmware, _ := cmd.Flags().GetString("firmware"); firmware != "" {
		profile.Firmware = bootspec.Firmware(firmware)
	}
	if iface, _ := cmd.Flags().GetString("interface"); iface != "" {
		profile.Interface = bootspec.DiskInterface(iface)
	}
}

// unmountSource unmounts the boot source's mounted partitions so the
// guest does not boot a filesystem the host has open.
func unmountSource(src bootspec.BootSource) error {
	var targets []string
	switch {
	case src.Partition != nil && src.Partition.Mountpoint != nil:
		targets = append(targets, src.Partition.Device)
	case src.Device != nil:
		for i := range src.Device.Partitions {
			if src.Device.Partitions[i].Mountpoint != nil {
				targets = append(targets, src.Device.Partitions[i].Device)
			}
		}
	}
	for _, dev := range targets {
		if out, err := exec.Command("umount", dev).CombinedOutput(); err != nil {
			return fmt.Errorf("umount %s: %v: %s", dev, err, strings.TrimSpace(string(out)))
		}
		fmt.Printf("Unmounted %s\n", dev)
	}
	return nil
}

// warnMounted reports whether the boot source is currently mounted.
func warnMounted(src bootspec.BootSource) bool {
	switch {
	case src.Partition != nil:
		return src.Partition.Mountpoint != nil
	case src.Device != nil:
		return src.Device.Mounted()
	}
	return false
}
