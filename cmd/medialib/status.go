package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog statistics",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	lib, err := openLibrary(nil)
	if err != nil {
		return err
	}
	defer lib.Shutdown()

	s, err := lib.Catalog().Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Devices:    %d\n", s.Devices)
	fmt.Printf("Folders:    %d\n", s.Folders)
	fmt.Printf("Files:      %d (%s)\n", s.Files, humanize.Bytes(uint64(s.TotalBytes)))
	fmt.Printf("Audio:      %d\n", s.Audio)
	fmt.Printf("Video:      %d\n", s.Video)
	fmt.Printf("Unknown:    %d\n", s.Unknown)
	fmt.Printf("Albums:     %d\n", s.Albums)
	fmt.Printf("Artists:    %d\n", s.Artists)
	fmt.Printf("Genres:     %d\n", s.Genres)
	fmt.Printf("Shows:      %d\n", s.Shows)
	fmt.Printf("Movies:     %d\n", s.Movies)
	fmt.Printf("Playlists:  %d\n", s.Playlists)
	if s.TasksTotal > 0 {
		fmt.Printf("Parsing:    %d/%d tasks (%s)\n", s.TasksDone, s.TasksTotal,
			humanize.FtoaWithDigits(float64(s.TasksDone)*100/float64(s.TasksTotal), 1)+"%")
	}
	return nil
}
