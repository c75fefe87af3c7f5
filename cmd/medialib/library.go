package main

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/franz/medialib/internal/medialib"
)

// cliCallbacks keeps just enough state for the commands to render
// progress; everything else stays no-op.
type cliCallbacks struct {
	medialib.NopCallbacks
	parsePercent atomic.Uint64 // percent * 100
	foldersDone  atomic.Int64
}

func (c *cliCallbacks) OnParsingStatsUpdated(percent float64) {
	c.parsePercent.Store(uint64(percent * 100))
}

func (c *cliCallbacks) OnDiscoveryProgress(string) {
	c.foldersDone.Add(1)
}

func (c *cliCallbacks) percent() float64 {
	return float64(c.parsePercent.Load()) / 100
}

// openLibrary assembles and initializes the engine from viper config.
func openLibrary(cb medialib.Callbacks) (*medialib.MediaLibrary, error) {
	lib := medialib.New(medialib.Config{
		DBPath:       viper.GetString("db"),
		ThumbnailDir: viper.GetString("thumbnails"),
		Callbacks:    cb,
	})
	switch res := lib.Initialize(); res {
	case medialib.InitSuccess:
	case medialib.InitDbReset:
		fmt.Println("note: the catalog database was rebuilt")
	default:
		return nil, fmt.Errorf("library initialization failed: %s", res)
	}
	return lib, nil
}
