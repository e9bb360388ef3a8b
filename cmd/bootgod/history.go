package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sigreer/bootgod/internal/config"
	"github.com/sigreer/bootgod/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past boot sessions and imaging jobs",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		db, err := history.New(cfg.History.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		sessions, err := db.RecentSessions(limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading sessions: %v\n", err)
			os.Exit(1)
		}
		jobs, err := db.RecentJobs(limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading jobs: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Boot sessions:")
		if len(sessions) == 0 {
			fmt.Println("  (none)")
		}
		for _, s := range sessions {
			state := s.State
			if s.ExitCode != nil && *s.ExitCode != 0 {
				state = fmt.Sprintf("%s (code %d)", s.State, *s.ExitCode)
			}
			fmt.Printf("  %s  %-9s %-42s %s\n",
				s.StartedAt.Format(time.DateTime), state, s.SourcePath, s.ID[:8])
		}

		fmt.Println("\nImaging jobs:")
		if len(jobs) == 0 {
			fmt.Println("  (none)")
		}
		for _, j := range jobs {
			fmt.Printf("  %s  %-9s %s -> %s (%s of %s)\n",
				j.StartedAt.Format(time.DateTime), j.State, j.SourcePath, j.TargetPath,
				humanize.IBytes(uint64(j.BytesWritten)), humanize.IBytes(uint64(j.BytesTotal)))
		}
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "maximum entries per section")
}
