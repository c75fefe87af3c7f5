package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/franz/medialib/internal/util"
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>...",
	Short: "Discover and parse media under one or more entry points",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cb := &cliCallbacks{}
	lib, err := openLibrary(cb)
	if err != nil {
		return err
	}
	defer lib.Shutdown()

	for _, path := range args {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("bad entry point %s: %w", path, err)
		}
		util.InfoLog("Discovering %s", abs)
		lib.Discover(abs)
	}

	isTTY := util.IsTerminal(os.Stdout.Fd())
	var bar *progressbar.ProgressBar
	if isTTY && !util.IsQuiet() {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	// give discovery a moment to enqueue before trusting the idle flag
	time.Sleep(250 * time.Millisecond)
	for !lib.IsIdle() {
		if bar != nil {
			bar.Describe(fmt.Sprintf("Scanning | %d folders | parsing %.1f%%",
				cb.foldersDone.Load(), cb.percent()))
			bar.Add(1)
		}
		time.Sleep(200 * time.Millisecond)
	}
	if bar != nil {
		bar.Finish()
	}

	stats, err := lib.Catalog().Stats()
	if err != nil {
		return err
	}
	util.SuccessLog("Scan complete: %d files, %d audio, %d video (%d tasks done of %d)",
		stats.Files, stats.Audio, stats.Video, stats.TasksDone, stats.TasksTotal)
	return nil
}
