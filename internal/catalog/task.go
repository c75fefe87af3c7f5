package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// Step is a bitmask of completed parser stages. A task survives crashes:
// on restart it resumes from the first unset bit.
type Step uint8

const (
	StepNone               Step = 0
	StepMetadataExtraction Step = 1 << 0
	StepMetadataAnalysis   Step = 1 << 1
	StepThumbnail          Step = 1 << 2
	StepCompleted               = StepMetadataExtraction | StepMetadataAnalysis | StepThumbnail
)

// MaxTaskRetries is the per-task retry budget before it is parked as
// failed.
const MaxTaskRetries = 3

// Task is one persistent scan unit for the parser.
type Task struct {
	ID                  int64
	Step                Step
	RetryCount          int
	MRL                 string
	FileID              sql.NullInt64
	ParentFolderID      sql.NullInt64
	ParentPlaylistID    sql.NullInt64
	ParentPlaylistIndex sql.NullInt64

	// Media is the in-memory handle the services pass along; never
	// persisted.
	Media *Media `json:"-"`
	// Meta carries extractor output to the analyzer; never persisted.
	Meta *TaskMetadata `json:"-"`
}

// TaskMetadata is what the extractor learned from a file's tags, handed
// down the service chain in memory only.
type TaskMetadata struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Genre       string
	TrackNumber int
	DiscNumber  int
	Year        int
	Duration    int64
	IsAudio     bool
	Compilation bool
	HasArtwork  bool
}

// HasStep reports whether a stage already completed.
func (t *Task) HasStep(s Step) bool {
	return t.Step&s != 0
}

// MarkStep sets a completed stage bit in memory; SaveTaskStep persists it.
func (t *Task) MarkStep(s Step) {
	t.Step |= s
}

// IsCompleted reports whether every stage ran.
func (t *Task) IsCompleted() bool {
	return t.Step == StepCompleted
}

const taskCols = `id, step, retry_count, mrl, file_id, parent_folder_id,
	parent_playlist_id, parent_playlist_index`

func scanTaskRow(scan func(...interface{}) error) (*Task, error) {
	t := &Task{}
	err := scan(&t.ID, &t.Step, &t.RetryCount, &t.MRL, &t.FileID,
		&t.ParentFolderID, &t.ParentPlaylistID, &t.ParentPlaylistIndex)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return t, nil
}

// CreateTask enqueues a persistent scan task for a discovered file. A
// duplicate MRL means the file is already scheduled; callers treat the
// constraint error as benign.
func (c *Catalog) CreateTask(mrl string, fileID, parentFolderID int64) (*Task, error) {
	var file, folder interface{}
	if fileID != 0 {
		file = fileID
	}
	if parentFolderID != 0 {
		folder = parentFolderID
	}
	res, err := c.conn.Exec(`
		INSERT INTO tasks (step, retry_count, mrl, file_id, parent_folder_id)
		VALUES (0, 0, ?, ?, ?)
	`, mrl, file, folder)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get task id: %w", err)
	}
	c.conn.Record(TableTasks, sqlite.HookInsert, id)
	return c.TaskByID(id)
}

// TaskByID fetches a task. Tasks are transient workers' property and not
// identity-cached.
func (c *Catalog) TaskByID(id int64) (*Task, error) {
	return scanTaskRow(c.conn.QueryRow(
		"SELECT "+taskCols+" FROM tasks WHERE id = ?", id).Scan)
}

// SaveTaskStep persists a task's progress, optionally inside an open
// transaction so a service can commit step and row changes atomically.
func (c *Catalog) SaveTaskStep(tx *sqlite.Tx, t *Task) error {
	const q = "UPDATE tasks SET step = ?, retry_count = ? WHERE id = ?"
	var err error
	if tx != nil {
		_, err = tx.Exec(q, t.Step, t.RetryCount, t.ID)
	} else {
		_, err = c.conn.Exec(q, t.Step, t.RetryCount, t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to save task step: %w", err)
	}
	return nil
}

// IncrementTaskRetry bumps the retry counter and reports the new value.
func (c *Catalog) IncrementTaskRetry(t *Task) (int, error) {
	t.RetryCount++
	if err := c.SaveTaskStep(nil, t); err != nil {
		return 0, err
	}
	return t.RetryCount, nil
}

// DeleteTaskByMRL drops any task for an MRL, completed or not. The
// crawler uses it before rescheduling a file that changed on disk.
func (c *Catalog) DeleteTaskByMRL(mrl string) error {
	if _, err := c.conn.Exec("DELETE FROM tasks WHERE mrl = ?", mrl); err != nil {
		return fmt.Errorf("failed to delete task for %s: %w", mrl, err)
	}
	return nil
}

// DeleteTask drops a finished or discarded task.
func (c *Catalog) DeleteTask(id int64) error {
	if _, err := c.conn.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	c.conn.Record(TableTasks, sqlite.HookDelete, id)
	return nil
}

// UncompletedTasks fetches crash-recovery work: every task below the retry
// budget whose file is still present (or purely MRL-based).
func (c *Catalog) UncompletedTasks() ([]*Task, error) {
	rows, err := c.conn.Query(`
		SELECT `+taskCols+` FROM tasks t
		WHERE t.step != ? AND t.retry_count < ?
		  AND (t.file_id IS NULL OR EXISTS(
			SELECT 1 FROM files f WHERE f.id = t.file_id AND f.is_present = 1))
		ORDER BY t.id
	`, StepCompleted, MaxTaskRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to query uncompleted tasks: %w", err)
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecoverUnscannedFiles resets the retry budget of interrupted tasks so a
// fresh run picks them up where they stopped.
func (c *Catalog) RecoverUnscannedFiles() error {
	_, err := c.conn.Exec(
		"UPDATE tasks SET retry_count = 0 WHERE step != ?", StepCompleted)
	if err != nil {
		return fmt.Errorf("failed to recover unscanned files: %w", err)
	}
	return nil
}

// ResetParsing clears all task progress for a full rescan.
func (c *Catalog) ResetParsing() error {
	_, err := c.conn.Exec("UPDATE tasks SET retry_count = 0, step = ?", StepNone)
	if err != nil {
		return fmt.Errorf("failed to reset parsing: %w", err)
	}
	return nil
}

// TaskProgress reports (completed, total) tasks for parsing stats.
func (c *Catalog) TaskProgress() (done, total int, err error) {
	err = c.conn.QueryRow(`
		SELECT COUNT(CASE WHEN step = ? THEN 1 END), COUNT(*) FROM tasks
	`, StepCompleted).Scan(&done, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query task progress: %w", err)
	}
	return done, total, nil
}
