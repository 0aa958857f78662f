package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// GetProject returns a project by ID.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (model.Project, error) {
	var p model.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, plan, COALESCE(store_url, ''), created_at
		 FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Plan, &p.StoreURL, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, ErrNotFound
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("storage: get project: %w", err)
	}
	return p, nil
}

// CreateProject inserts a project row.
func (db *DB) CreateProject(ctx context.Context, p model.Project) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO projects (id, name, plan, store_url, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		p.ID, p.Name, p.Plan, p.StoreURL, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create project: %w", err)
	}
	return nil
}
