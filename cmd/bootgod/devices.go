package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sigreer/bootgod/internal/catalog"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List storage devices and their partitions",
	Long: `Enumerate storage devices, their partitions, detected filesystems,
boot signatures and mount state. Classification reads on-disk
signatures directly, so results reflect what is actually on the media
rather than cached udev metadata (run as root for full detail).`,
	Run: func(cmd *cobra.Command, args []string) {
		jsonOut, _ := cmd.Flags().GetBool("json")
		all, _ := cmd.Flags().GetBool("all")

		devices, err := catalog.New().Enumerate(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error enumerating devices: %v\n", err)
			os.Exit(1)
		}

		if !all {
			devices = removableOrNVMe(devices)
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(devices)
			return
		}

		printDevices(devices)
	},
}

func init() {
	devicesCmd.Flags().Bool("json", false, "Output as JSON")
	devicesCmd.Flags().Bool("all", false, "Include fixed non-NVMe disks")
}

// removableOrNVMe keeps the devices a user would plausibly boot or
// image: removable media and NVMe drives.
func removableOrNVMe(devices []catalog.StorageDevice) []catalog.StorageDevice {
	var out []catalog.StorageDevice
	for _, dev := range devices {
		if dev.Removable || dev.Transport == catalog.TransportNVMe {
			out = append(out, dev)
		}
	}
	return out
}

func printDevices(devices []catalog.StorageDevice) {
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return
	}

	for _, dev := range devices {
		model := ""
		if dev.Model != nil {
			model = " " + *dev.Model
		}
		flags := string(dev.Transport)
		if dev.Removable {
			flags += ", removable"
		}
		fmt.Printf("%s%s  %s (%s)\n", dev.Device, model, humanize.IBytes(dev.Size), flags)

		for _, part := range dev.Partitions {
			boot := ""
			if part.Bootable {
				boot = "  [boot]"
			}
			mount := ""
			if part.Mountpoint != nil {
				mount = "  mounted at " + *part.Mountpoint
			} else if !part.MountKnown {
				mount = "  mount state unknown"
			}
			label := ""
			if part.Label != nil {
				label = " " + *part.Label
			}
			fmt.Printf("  %-16s %10s  %-12s%s%s%s\n",
				part.Device, humanize.IBytes(part.Size), string(part.FS), label, boot, mount)
		}
		fmt.Println()
	}
}
