package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// Device is a physical or logical storage volume. Devices are created on
// first observation and never destroyed automatically; unplugging only
// flips presence.
type Device struct {
	ID        int64
	UUID      string
	Scheme    string
	Removable bool
	Present   bool
}

const deviceCols = "id, uuid, scheme, is_removable, is_present"

func scanDevice(row *sql.Row) (*Device, error) {
	d := &Device{}
	err := row.Scan(&d.ID, &d.UUID, &d.Scheme, &d.Removable, &d.Present)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}
	return d, nil
}

// DeviceByID fetches a device through the identity cache.
func (c *Catalog) DeviceByID(id int64) (*Device, error) {
	return c.devices.GetOrFetch(id, func() (*Device, error) {
		return scanDevice(c.conn.QueryRow(
			"SELECT "+deviceCols+" FROM devices WHERE id = ?", id))
	})
}

// DeviceByUUID fetches a device by its volume UUID.
func (c *Catalog) DeviceByUUID(uuid string) (*Device, error) {
	var id int64
	err := c.conn.QueryRow("SELECT id FROM devices WHERE uuid = ?", uuid).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up device %s: %w", uuid, err)
	}
	return c.DeviceByID(id)
}

// CreateDevice registers a volume on first observation.
func (c *Catalog) CreateDevice(uuid, scheme string, removable bool) (*Device, error) {
	res, err := c.conn.Exec(`
		INSERT INTO devices (uuid, scheme, is_removable, is_present)
		VALUES (?, ?, ?, 1)
	`, uuid, scheme, removable)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get device id: %w", err)
	}
	c.conn.Record(TableDevices, sqlite.HookInsert, id)
	return c.DeviceByID(id)
}

// SetDevicePresent flips a device's presence. The trigger network
// propagates the flip down to folders, files, media, tracks, albums and
// artists, so the dependent caches are cleared wholesale.
func (c *Catalog) SetDevicePresent(id int64, present bool) error {
	err := sqlite.WithRetries(3, func() error {
		_, err := c.conn.Exec(
			"UPDATE devices SET is_present = ? WHERE id = ?", present, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update device presence: %w", err)
	}
	c.devices.Evict(id)
	c.evictPresenceCascade()
	c.conn.Record(TableDevices, sqlite.HookUpdate, id)
	return nil
}
