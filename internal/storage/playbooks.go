package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// GetPlaybook returns one playbook scoped to a project.
func (db *DB) GetPlaybook(ctx context.Context, projectID, id uuid.UUID) (model.Playbook, error) {
	var (
		pb       model.Playbook
		criteria []byte
		rawRules []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, project_id, name, COALESCE(description, ''), target_field, criteria, rules, created_at, updated_at
		 FROM playbooks WHERE project_id = $1 AND id = $2`, projectID, id,
	).Scan(&pb.ID, &pb.ProjectID, &pb.Name, &pb.Description, &pb.TargetField, &criteria, &rawRules, &pb.CreatedAt, &pb.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Playbook{}, ErrNotFound
	}
	if err != nil {
		return model.Playbook{}, fmt.Errorf("storage: get playbook: %w", err)
	}
	if err := json.Unmarshal(criteria, &pb.Criteria); err != nil {
		return model.Playbook{}, fmt.Errorf("storage: decode playbook criteria: %w", err)
	}
	if len(rawRules) > 0 {
		if err := json.Unmarshal(rawRules, &pb.Rules); err != nil {
			return model.Playbook{}, fmt.Errorf("storage: decode playbook rules: %w", err)
		}
	}
	return pb, nil
}

// ListPlaybooks returns all playbooks for a project, newest first.
func (db *DB) ListPlaybooks(ctx context.Context, projectID uuid.UUID) ([]model.Playbook, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, name, COALESCE(description, ''), target_field, criteria, rules, created_at, updated_at
		 FROM playbooks WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("storage: list playbooks: %w", err)
	}
	defer rows.Close()

	var out []model.Playbook
	for rows.Next() {
		var (
			pb       model.Playbook
			criteria []byte
			rawRules []byte
		)
		if err := rows.Scan(&pb.ID, &pb.ProjectID, &pb.Name, &pb.Description, &pb.TargetField, &criteria, &rawRules, &pb.CreatedAt, &pb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan playbook: %w", err)
		}
		if err := json.Unmarshal(criteria, &pb.Criteria); err != nil {
			return nil, fmt.Errorf("storage: decode playbook criteria: %w", err)
		}
		if len(rawRules) > 0 {
			if err := json.Unmarshal(rawRules, &pb.Rules); err != nil {
				return nil, fmt.Errorf("storage: decode playbook rules: %w", err)
			}
		}
		out = append(out, pb)
	}
	return out, rows.Err()
}

// CreatePlaybook inserts a playbook row.
func (db *DB) CreatePlaybook(ctx context.Context, pb model.Playbook) error {
	criteria, err := json.Marshal(pb.Criteria)
	if err != nil {
		return fmt.Errorf("storage: encode playbook criteria: %w", err)
	}
	rawRules, err := json.Marshal(pb.Rules)
	if err != nil {
		return fmt.Errorf("storage: encode playbook rules: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO playbooks (id, project_id, name, description, target_field, criteria, rules, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)`,
		pb.ID, pb.ProjectID, pb.Name, pb.Description, pb.TargetField, criteria, rawRules, pb.CreatedAt, pb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create playbook: %w", err)
	}
	return nil
}
