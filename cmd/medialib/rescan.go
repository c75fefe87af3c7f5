package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/medialib/internal/util"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Drop derived data and re-run the parser over every known file",
	Args:  cobra.NoArgs,
	RunE:  runRescan,
}

func init() {
	rootCmd.AddCommand(rescanCmd)
}

func runRescan(cmd *cobra.Command, args []string) error {
	cb := &cliCallbacks{}
	lib, err := openLibrary(cb)
	if err != nil {
		return err
	}
	defer lib.Shutdown()

	util.InfoLog("Forcing a full rescan")
	lib.ForceRescan()

	time.Sleep(250 * time.Millisecond)
	for !lib.IsIdle() {
		time.Sleep(200 * time.Millisecond)
	}

	stats, err := lib.Catalog().Stats()
	if err != nil {
		return err
	}
	util.SuccessLog("Rescan complete: %d/%d tasks done", stats.TasksDone, stats.TasksTotal)
	return nil
}
