package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var banCmd = &cobra.Command{
	Use:   "ban <path>",
	Short: "Exclude a folder from discovery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return banOrUnban(args[0], true)
	},
}

var unbanCmd = &cobra.Command{
	Use:   "unban <path>",
	Short: "Lift a folder exclusion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return banOrUnban(args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(banCmd)
	rootCmd.AddCommand(unbanCmd)
}

func banOrUnban(path string, ban bool) error {
	lib, err := openLibrary(nil)
	if err != nil {
		return err
	}
	defer lib.Shutdown()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if ban {
		lib.BanFolder(abs)
	} else {
		lib.UnbanFolder(abs)
	}
	// the command queue is asynchronous; wait for it to drain
	for !lib.IsIdle() {
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}
