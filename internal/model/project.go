package model

import (
	"time"

	"github.com/google/uuid"
)

// Project is a tenant: one connected store plus its subscription plan.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	StoreURL  string    `json:"store_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Role controls what a token may do within a project.
type Role string

const (
	// RoleViewer may read playbooks, estimates, and usage.
	RoleViewer Role = "viewer"
	// RoleEditor may additionally run preview and apply.
	RoleEditor Role = "editor"
	// RoleAdmin may do everything, including destructive operations.
	RoleAdmin Role = "admin"
)

var roleRank = map[Role]int{RoleViewer: 1, RoleEditor: 2, RoleAdmin: 3}

// RoleAtLeast reports whether have meets or exceeds want.
func RoleAtLeast(have, want Role) bool {
	return roleRank[have] >= roleRank[want]
}
