package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// Genre is a flat name shared by album tracks.
type Genre struct {
	ID   int64
	Name string
}

// GenreByID fetches a genre through the identity cache.
func (c *Catalog) GenreByID(id int64) (*Genre, error) {
	return c.genres.GetOrFetch(id, func() (*Genre, error) {
		g := &Genre{}
		err := c.conn.QueryRow(
			"SELECT id, name FROM genres WHERE id = ?", id).Scan(&g.ID, &g.Name)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		return g, nil
	})
}

// GenreByName fetches a genre by exact name.
func (c *Catalog) GenreByName(name string) (*Genre, error) {
	var id int64
	err := c.conn.QueryRow("SELECT id FROM genres WHERE name = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up genre %s: %w", name, err)
	}
	return c.GenreByID(id)
}

// CreateGenre inserts a genre, recovering a duplicate-name race by
// fetching the existing row.
func (c *Catalog) CreateGenre(name string) (*Genre, error) {
	res, err := c.conn.Exec("INSERT INTO genres (name) VALUES (?)", name)
	if err != nil {
		if sqlite.IsConstraint(err) {
			return c.GenreByName(name)
		}
		return nil, fmt.Errorf("failed to create genre: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get genre id: %w", err)
	}
	c.conn.Record(TableGenres, sqlite.HookInsert, id)
	return c.GenreByID(id)
}

// Genres lists all genres by name.
func (c *Catalog) Genres() ([]*Genre, error) {
	rows, err := c.conn.Query("SELECT id, name FROM genres ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	defer rows.Close()
	var out []*Genre
	for rows.Next() {
		g := &Genre{}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SearchGenres matches genre names against the FTS shadow table.
func (c *Catalog) SearchGenres(pattern string) ([]*Genre, error) {
	if len(pattern) < 3 {
		return nil, nil
	}
	rows, err := c.conn.Query(`
		SELECT g.id, g.name FROM genres g
		JOIN genres_fts ON genres_fts.rowid = g.id
		WHERE genres_fts MATCH ?
		ORDER BY genres_fts.rank
	`, ftsQuote(pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to search genres: %w", err)
	}
	defer rows.Close()
	var out []*Genre
	for rows.Next() {
		g := &Genre{}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
