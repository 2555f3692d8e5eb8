package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bugtrackr/apiserver/types"
)

const bugColumns = `id, project_id, title, description, deadline, image, type, status, locked, assigned_to, created_by, created_at, updated_at`

// BugRepository handles persistence for bugs.
type BugRepository struct {
	db *sql.DB
}

func NewBugRepository(db *sql.DB) *BugRepository {
	return &BugRepository{db: db}
}

func (r *BugRepository) Get(ctx context.Context, id int) (types.Bug, error) {
	const query = `
		SELECT ` + bugColumns + `
		FROM bugs
		WHERE id = $1`
	return scanBug(r.db.QueryRowContext(ctx, query, id))
}

func (r *BugRepository) Create(ctx context.Context, bug types.Bug) (types.Bug, error) {
	now := time.Now()
	bug.CreatedAt = now
	bug.UpdatedAt = now

	const query = `
		INSERT INTO bugs (project_id, title, description, deadline, image, type, status, locked, assigned_to, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		bug.ProjectID,
		bug.Title,
		bug.Description,
		bug.Deadline,
		bug.Image,
		string(bug.Type),
		string(bug.Status),
		bug.Locked,
		nullableInt(bug.AssignedTo),
		bug.CreatedBy,
		bug.CreatedAt,
		bug.UpdatedAt,
	).Scan(&bug.ID); err != nil {
		if isUniqueViolation(err) {
			return types.Bug{}, ErrConflict
		}
		return types.Bug{}, err
	}
	return bug, nil
}

// UpdateStatus moves a bug from one status to another with a conditional
// write. The WHERE clause pins the expected current status, so a
// transition raced by a concurrent writer affects zero rows instead of
// silently overwriting; callers re-read and report the conflict.
func (r *BugRepository) UpdateStatus(ctx context.Context, id int, from, to types.BugStatus) (types.Bug, error) {
	const query = `
		UPDATE bugs
		SET status = $1,
			updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + bugColumns
	bug, err := scanBug(r.db.QueryRowContext(ctx, query, string(to), time.Now(), id, string(from)))
	if err != nil {
		return types.Bug{}, err
	}
	return bug, nil
}

// SetLocked flips the lock flag. The write is refused at the storage
// layer for closed bugs so a concurrent close cannot race the toggle.
func (r *BugRepository) SetLocked(ctx context.Context, id int, locked bool) (types.Bug, error) {
	const query = `
		UPDATE bugs
		SET locked = $1,
			updated_at = $2
		WHERE id = $3 AND status <> $4
		RETURNING ` + bugColumns
	bug, err := scanBug(r.db.QueryRowContext(ctx, query, locked, time.Now(), id, string(types.StatusClosed)))
	if err != nil {
		return types.Bug{}, err
	}
	return bug, nil
}

// SetImage records the object key of a bug's attachment.
func (r *BugRepository) SetImage(ctx context.Context, id int, key string) (types.Bug, error) {
	const query = `
		UPDATE bugs
		SET image = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + bugColumns
	return scanBug(r.db.QueryRowContext(ctx, query, key, time.Now(), id))
}

func (r *BugRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM bugs WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByProject returns all bugs belonging to a project, newest first.
func (r *BugRepository) ListByProject(ctx context.Context, projectID int) ([]types.Bug, error) {
	const query = `
		SELECT ` + bugColumns + `
		FROM bugs
		WHERE project_id = $1
		ORDER BY created_at DESC`
	return r.list(ctx, query, projectID)
}

// ListByCreator returns the bugs reported by a QA account, newest first.
func (r *BugRepository) ListByCreator(ctx context.Context, creatorID int) ([]types.Bug, error) {
	const query = `
		SELECT ` + bugColumns + `
		FROM bugs
		WHERE created_by = $1
		ORDER BY created_at DESC`
	return r.list(ctx, query, creatorID)
}

// ListByAssignee returns the bugs assigned to a developer, most recently
// updated first.
func (r *BugRepository) ListByAssignee(ctx context.Context, developerID int) ([]types.Bug, error) {
	const query = `
		SELECT ` + bugColumns + `
		FROM bugs
		WHERE assigned_to = $1
		ORDER BY updated_at DESC`
	return r.list(ctx, query, developerID)
}

func (r *BugRepository) list(ctx context.Context, query string, arg any) ([]types.Bug, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bugs []types.Bug
	for rows.Next() {
		bug, err := scanBug(rows)
		if err != nil {
			return nil, err
		}
		bugs = append(bugs, bug)
	}
	return bugs, rows.Err()
}

func scanBug(row rowScanner) (types.Bug, error) {
	var bug types.Bug
	var deadline sql.NullTime
	var assignedTo sql.NullInt64
	err := row.Scan(
		&bug.ID,
		&bug.ProjectID,
		&bug.Title,
		&bug.Description,
		&deadline,
		&bug.Image,
		&bug.Type,
		&bug.Status,
		&bug.Locked,
		&assignedTo,
		&bug.CreatedBy,
		&bug.CreatedAt,
		&bug.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Bug{}, ErrNotFound
		}
		return types.Bug{}, err
	}
	if deadline.Valid {
		t := deadline.Time
		bug.Deadline = &t
	}
	if assignedTo.Valid {
		id := int(assignedTo.Int64)
		bug.AssignedTo = &id
	}
	return bug, nil
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
