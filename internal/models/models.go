// Package models contains the request/response DTOs of the HTTP API and
// the error taxonomy shared between the service and router layers.
package models

import (
	"errors"

	"github.com/m-lukins/compforge/internal/project"
)

// Error taxonomy. The router translates these to HTTP statuses; anything
// that matches none of them is reported as an internal error.
var (
	// ErrNotFound covers both a genuinely absent resource and a resource
	// owned by a different user, so existence is never disclosed.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates missing or malformed required fields.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates absent or invalid credentials or session.
	ErrUnauthorized = errors.New("unauthenticated")

	// ErrForbidden indicates an authenticated caller without entitlement.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates a duplicate unique field at signup.
	ErrConflict = errors.New("already exists")
)

type SignupRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type SigninRequest struct {
	// Identifier is a username or an email address.
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// ComponentInput describes a component supplied inline with a project
// creation request or via the component creation endpoint.
type ComponentInput struct {
	Name     string `json:"name" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Favorite bool   `json:"favorite"`
}

type CreateProjectRequest struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description" validate:"required"`
	Components  []ComponentInput `json:"components"`
}

// ProjectPatch is the explicit whitelist of mutable project fields.
// Absent fields are left untouched; the owner id, createdAt and id
// cannot appear here and so cannot be overwritten.
type ProjectPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ComponentPatch is the explicit whitelist of mutable component fields.
type ComponentPatch struct {
	Name     *string `json:"name"`
	Code     *string `json:"code"`
	Favorite *bool   `json:"favorite"`
}

// ProfilePatch is the explicit whitelist of mutable profile fields.
// Absent fields are left untouched, so a payload without an avatar does
// not erase the stored one.
type ProfilePatch struct {
	Username *string `json:"username"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Avatar   *string `json:"avatar"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

type UpdateVisibilityRequest struct {
	Visibility string `json:"visibility" validate:"required,oneof=public private"`
}

// MessageResponse is the uniform body of error responses and of
// operations that return only an acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// DeleteProjectResponse acknowledges a project deletion and carries the
// deleted snapshot, components included.
type DeleteProjectResponse struct {
	Message        string           `json:"message"`
	DeletedProject *project.Project `json:"deletedProject"`
}

// ComponentsListResponse wraps the flattened per-user component view.
type ComponentsListResponse struct {
	Components []project.ComponentWithProject `json:"components"`
}

type InternalStatsResponse struct {
	Users    int64 `json:"users"`
	Projects int64 `json:"projects"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)
