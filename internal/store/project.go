package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/bugtrackr/apiserver/types"
)

// ProjectRepository handles persistence for projects. Membership sets are
// stored as JSONB arrays and queried with containment operators.
type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Get(ctx context.Context, id int) (types.Project, error) {
	const query = `
		SELECT id, name, manager_id, developer_ids, qa_ids, created_at, updated_at
		FROM projects
		WHERE id = $1`
	return scanProject(r.db.QueryRowContext(ctx, query, id))
}

func (r *ProjectRepository) Create(ctx context.Context, project types.Project) (types.Project, error) {
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	devJSON, qaJSON, err := marshalMembership(project)
	if err != nil {
		return types.Project{}, err
	}

	const query = `
		INSERT INTO projects (name, manager_id, developer_ids, qa_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		project.Name,
		project.ManagerID,
		devJSON,
		qaJSON,
		project.CreatedAt,
		project.UpdatedAt,
	).Scan(&project.ID); err != nil {
		return types.Project{}, err
	}
	return project, nil
}

func (r *ProjectRepository) Update(ctx context.Context, project types.Project) (types.Project, error) {
	project.UpdatedAt = time.Now()

	devJSON, qaJSON, err := marshalMembership(project)
	if err != nil {
		return types.Project{}, err
	}

	const query = `
		UPDATE projects
		SET name = $1,
			developer_ids = $2,
			qa_ids = $3,
			updated_at = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, project.Name, devJSON, qaJSON, project.UpdatedAt, project.ID)
	if err != nil {
		return types.Project{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Project{}, err
	}
	if affected == 0 {
		return types.Project{}, ErrNotFound
	}
	return project, nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM projects WHERE id = $1`
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

// ListByManager returns the projects owned by the given manager.
func (r *ProjectRepository) ListByManager(ctx context.Context, managerID int) ([]types.Project, error) {
	const query = `
		SELECT id, name, manager_id, developer_ids, qa_ids, created_at, updated_at
		FROM projects
		WHERE manager_id = $1
		ORDER BY id`
	return r.list(ctx, query, managerID)
}

// ListByDeveloper returns the projects whose developer set contains the
// given account.
func (r *ProjectRepository) ListByDeveloper(ctx context.Context, developerID int) ([]types.Project, error) {
	const query = `
		SELECT id, name, manager_id, developer_ids, qa_ids, created_at, updated_at
		FROM projects
		WHERE developer_ids @> to_jsonb($1::int)
		ORDER BY id`
	return r.list(ctx, query, developerID)
}

// ListByQA returns the projects whose QA set contains the given account.
func (r *ProjectRepository) ListByQA(ctx context.Context, qaID int) ([]types.Project, error) {
	const query = `
		SELECT id, name, manager_id, developer_ids, qa_ids, created_at, updated_at
		FROM projects
		WHERE qa_ids @> to_jsonb($1::int)
		ORDER BY id`
	return r.list(ctx, query, qaID)
}

func (r *ProjectRepository) list(ctx context.Context, query string, arg any) ([]types.Project, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func scanProject(row rowScanner) (types.Project, error) {
	var project types.Project
	var devJSON, qaJSON []byte
	err := row.Scan(
		&project.ID,
		&project.Name,
		&project.ManagerID,
		&devJSON,
		&qaJSON,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Project{}, ErrNotFound
		}
		return types.Project{}, err
	}

	_ = json.Unmarshal(devJSON, &project.DeveloperIDs)
	_ = json.Unmarshal(qaJSON, &project.QAIDs)
	return project, nil
}

func marshalMembership(project types.Project) (devJSON, qaJSON []byte, err error) {
	if project.DeveloperIDs == nil {
		project.DeveloperIDs = []int{}
	}
	if project.QAIDs == nil {
		project.QAIDs = []int{}
	}
	devJSON, err = json.Marshal(project.DeveloperIDs)
	if err != nil {
		return nil, nil, err
	}
	qaJSON, err = json.Marshal(project.QAIDs)
	if err != nil {
		return nil, nil, err
	}
	return devJSON, qaJSON, nil
}
