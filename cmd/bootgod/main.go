package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sigreer/bootgod/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bootgod",
	Short: "Boot and image removable media through QEMU",
	Long: `bootgod boots live media (ISO images, disk images, USB keys and NVMe
partitions) in a QEMU virtual machine without touching the host, and
writes raw images onto removable devices with progress and safe
cancellation.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/bootgod/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(bootCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
