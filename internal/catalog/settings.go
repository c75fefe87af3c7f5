package catalog

import (
	"database/sql"
	"fmt"
)

// DBModelVersion reads the schema version from the settings singleton.
// Returns 0 when the table does not exist yet (fresh database).
func (c *Catalog) DBModelVersion() (int, error) {
	var exists int
	err := c.conn.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'settings'
	`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to probe settings table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = c.conn.QueryRow("SELECT db_model_version FROM settings").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read model version: %w", err)
	}
	return version, nil
}

// SetDBModelVersion updates the settings singleton.
func (c *Catalog) SetDBModelVersion(version int) error {
	if _, err := c.conn.Exec("UPDATE settings SET db_model_version = ?", version); err != nil {
		return fmt.Errorf("failed to set model version: %w", err)
	}
	return nil
}
