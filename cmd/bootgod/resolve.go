package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/bootgod/internal/bootspec"
	"github.com/sigreer/bootgod/internal/config"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <source>",
	Short: "Show the virtualization profile a source would boot with",
	Long: `Inspect a boot source (an ISO/disk image path, /dev/ device or
partition) and print the proposed virtualization parameters: firmware,
disk interface and resource defaults. User overrides from the config
file are applied on top.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jsonOut, _ := cmd.Flags().GetBool("json")

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

		profile, err := bootspec.NewResolver().Resolve(src)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		profile = cfg.ApplyOverrides(profile)

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(profile)
			return
		}

		fmt.Printf("source:     %s (%s)\n", src.Path(), src.Kind())
		fmt.Printf("firmware:   %s\n", profile.Firmware)
		fmt.Printf("interface:  %s\n", profile.Interface)
		fmt.Printf("memory:     %d MB\n", profile.MemoryMB)
		fmt.Printf("cpus:       %d\n", profile.CPUs)
		if rule := profile.Extra["matched-rule"]; rule != "" {
			fmt.Printf("heuristic:  %s\n", rule)
		}
	},
}

func init() {
	resolveCmd.Flags().Bool("json", false, "Output as JSON")
}
