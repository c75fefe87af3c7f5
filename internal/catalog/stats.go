package catalog

import "fmt"

// Stats is a cheap aggregate snapshot for status displays.
type Stats struct {
	Devices    int
	Folders    int
	Files      int
	TotalBytes int64
	Audio      int
	Video      int
	Unknown    int
	Albums     int
	Artists    int
	Genres     int
	Playlists  int
	Shows      int
	Movies     int
	TasksDone  int
	TasksTotal int
}

// Stats gathers the snapshot in one pass per table.
func (c *Catalog) Stats() (*Stats, error) {
	s := &Stats{}
	singles := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM devices", &s.Devices},
		{"SELECT COUNT(*) FROM folders", &s.Folders},
		{"SELECT COUNT(*) FROM files", &s.Files},
		{"SELECT COUNT(*) FROM media WHERE type = 2", &s.Audio},
		{"SELECT COUNT(*) FROM media WHERE type = 1", &s.Video},
		{"SELECT COUNT(*) FROM media WHERE type = 0", &s.Unknown},
		{"SELECT COUNT(*) FROM albums", &s.Albums},
		{"SELECT COUNT(*) FROM artists WHERE nb_tracks > 0", &s.Artists},
		{"SELECT COUNT(*) FROM genres", &s.Genres},
		{"SELECT COUNT(*) FROM playlists", &s.Playlists},
		{"SELECT COUNT(*) FROM shows", &s.Shows},
		{"SELECT COUNT(*) FROM movies", &s.Movies},
	}
	for _, q := range singles {
		if err := c.conn.QueryRow(q.query).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("failed to gather stats: %w", err)
		}
	}
	if err := c.conn.QueryRow(
		"SELECT COALESCE(SUM(size), 0) FROM files").Scan(&s.TotalBytes); err != nil {
		return nil, fmt.Errorf("failed to gather stats: %w", err)
	}
	var err error
	s.TasksDone, s.TasksTotal, err = c.TaskProgress()
	if err != nil {
		return nil, err
	}
	return s, nil
}
