package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"urbanvision/internal/dto"
	"urbanvision/internal/model"
)

// RunRepository implements repository.RunRepository for SQLite.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new SQLite run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `r.id, r.filename, r.source, r.timestamp, r.threshold, r.summary, r.filepath, r.filesize`

func scanRun(row interface{ Scan(...interface{}) error }) (*model.Run, error) {
	var run model.Run
	err := row.Scan(&run.ID, &run.Filename, &run.Source, &run.Timestamp, &run.Threshold, &run.Summary, &run.FilePath, &run.FileSize)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Insert adds a new run record to the database.
func (r *RunRepository) Insert(run *model.Run) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO runs (filename, source, timestamp, threshold, summary, filepath, filesize)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.Filename, run.Source, run.Timestamp, run.Threshold, run.Summary, run.FilePath, run.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves a run by its ID. A missing run yields nil, nil.
func (r *RunRepository) GetByID(id int64) (*model.Run, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	run, err := scanRun(r.db.Conn().QueryRow(`SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetByFilename retrieves a run by its archived file name.
func (r *RunRepository) GetByFilename(filename string) (*model.Run, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	run, err := scanRun(r.db.Conn().QueryRow(`SELECT `+runColumns+` FROM runs r WHERE r.filename = ?`, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// filterClause builds the WHERE suffix shared by GetAll and GetTotalCount.
func filterClause(filter *dto.RunFilters) (string, []interface{}) {
	clause := ""
	args := []interface{}{}
	if filter == nil {
		return clause, args
	}

	if filter.Object != "" {
		clause += " AND r.id IN (SELECT run_id FROM detections WHERE object_name = ?)"
		args = append(args, filter.Object)
	}

	if !filter.DateAfter.IsZero() {
		clause += " AND r.timestamp >= ?"
		args = append(args, filter.DateAfter)
	}

	if !filter.DateBefore.IsZero() {
		clause += " AND r.timestamp <= ?"
		args = append(args, filter.DateBefore)
	}

	return clause, args
}

// GetAll retrieves runs newest first, narrowed by the filter.
func (r *RunRepository) GetAll(filter *dto.RunFilters) ([]model.Run, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	clause, args := filterClause(filter)
	query := `SELECT ` + runColumns + ` FROM runs r WHERE 1=1` + clause + ` ORDER BY r.timestamp DESC, r.id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// GetTotalCount returns the number of runs matching the filter.
func (r *RunRepository) GetTotalCount(filter *dto.RunFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	clause, args := filterClause(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM runs r WHERE 1=1`+clause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}

	return count, nil
}

// GetDirectorySize returns the total size in bytes of all archived images.
func (r *RunRepository) GetDirectorySize() (int64, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var size int64
	if err := r.db.Conn().QueryRow(`SELECT COALESCE(SUM(filesize), 0) FROM runs`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to sum run sizes: %w", err)
	}
	return size, nil
}

// Delete removes a run and its detections by ID.
func (r *RunRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	return r.deleteRun(id)
}

func (r *RunRepository) deleteRun(id int64) error {
	if _, err := r.db.Conn().Exec(`DELETE FROM detections WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// DeleteByFilename removes a run by its file name. Unknown names are ignored.
func (r *RunRepository) DeleteByFilename(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	var runID int64
	err := r.db.Conn().QueryRow(`SELECT id FROM runs WHERE filename = ?`, filename).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get run id: %w", err)
	}

	return r.deleteRun(runID)
}

// DeleteAll removes all runs and their detections.
func (r *RunRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections`); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM runs`); err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}

	return nil
}
