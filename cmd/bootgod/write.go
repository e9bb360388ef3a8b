package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sigreer/bootgod/internal/config"
	"github.com/sigreer/bootgod/internal/history"
	"github.com/sigreer/bootgod/internal/imaging"
)

var writeCmd = &cobra.Command{
	Use:   "write <image> <device>",
	Short: "Write a raw image onto a device",
	Long: `Copy a source image byte-for-byte onto a target device. The target's
existing contents are destroyed. The copy is refused up front when the
image does not fit on the target, and Ctrl-C cancels cleanly at the
next chunk boundary - after a cancel the target holds a partial image
and is not safe to boot.

Examples:
  bootgod write ubuntu-live.iso /dev/sdb
  bootgod write backup.img /dev/nvme1n1 --yes`,
	Args: cobra.ExactArgs(2),
	Run:  runWrite,
}

func init() {
	writeCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
}

func runWrite(cmd *cobra.Command, args []string) {
	sourcePath, targetPath := args[0], args[1]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		fmt.Printf("This will destroy all data on %s. Continue? [y/N] ", targetPath)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	engine := imaging.NewEngine()
	engine.ChunkSize = cfg.ChunkSize()

	if !cfg.History.Disable {
		if db, err := history.New(cfg.History.Path); err == nil {
			defer db.Close()
			engine.Recorder = db
		}
	}

	job, err := engine.Start(context.Background(), sourcePath, targetPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nCancelling...")
		engine.Cancel(job.ID)
	}()

	progress := watchProgress(job)

	switch progress.State {
	case imaging.StateCompleted:
		fmt.Printf("\nDone: %s written to %s\n", humanize.IBytes(uint64(progress.BytesTotal)), targetPath)
	case imaging.StateCancelled:
		fmt.Printf("\nCancelled after %s of %s. The target is incomplete and not safe to boot.\n",
			humanize.IBytes(uint64(progress.BytesWritten)), humanize.IBytes(uint64(progress.BytesTotal)))
	case imaging.StateFailed:
		fmt.Fprintf(os.Stderr, "\nFailed: %s\n", progress.Reason)
		os.Exit(1)
	}
}

// watchProgress redraws a single status line until the job finishes.
func watchProgress(job *imaging.Job) imaging.Progress {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	waitCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan imaging.Progress, 1)
	go func() {
		p, _ := job.Wait(waitCtx)
		done <- p
	}()

	for {
		select {
		case p := <-done:
			return p
		case <-ticker.C:
			p := job.Progress()
			pct := 0.0
			if p.BytesTotal > 0 {
				pct = float64(p.BytesWritten) / float64(p.BytesTotal) * 100
			}
			fmt.Printf("\r%s / %s (%.1f%%)   ",
				humanize.IBytes(uint64(p.BytesWritten)), humanize.IBytes(uint64(p.BytesTotal)), pct)
		}
	}
}
