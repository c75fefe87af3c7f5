package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/franz/medialib/internal/medialib"
)

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search the catalog across media, albums, artists, genres and playlists",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	pattern := strings.TrimSpace(args[0])
	if len(pattern) < medialib.MinSearchLength {
		return fmt.Errorf("pattern must be at least %d characters", medialib.MinSearchLength)
	}

	lib, err := openLibrary(nil)
	if err != nil {
		return err
	}
	defer lib.Shutdown()

	res, err := lib.Search(pattern)
	if err != nil {
		return err
	}

	if len(res.Artists) > 0 {
		fmt.Println("Artists:")
		for _, a := range res.Artists {
			fmt.Printf("  %s (%d albums, %d tracks)\n", a.Name, a.NbAlbums, a.NbTracks)
		}
	}
	if len(res.Albums) > 0 {
		fmt.Println("Albums:")
		for _, a := range res.Albums {
			fmt.Printf("  %s (%d tracks)\n", a.Title, a.NbTracks)
		}
	}
	if len(res.Media) > 0 {
		fmt.Println("Media:")
		for _, m := range res.Media {
			fmt.Printf("  %s\n", m.Title)
		}
	}
	if len(res.Genres) > 0 {
		fmt.Println("Genres:")
		for _, g := range res.Genres {
			fmt.Printf("  %s\n", g.Name)
		}
	}
	if len(res.Playlists) > 0 {
		fmt.Println("Playlists:")
		for _, p := range res.Playlists {
			fmt.Printf("  %s\n", p.Name)
		}
	}
	total := len(res.Artists) + len(res.Albums) + len(res.Media) + len(res.Genres) + len(res.Playlists)
	if total == 0 {
		fmt.Println("no results")
	}
	return nil
}
