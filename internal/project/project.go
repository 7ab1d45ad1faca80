// Package project defines the project and component models.
// A project is a named, user-owned container; components live in a
// parent-keyed child collection and are addressed by the
// (projectID, componentID) pair.
package project

import "time"

// Component is a named unit of source code inside a project.
type Component struct {
	// ID is unique within the owning project's collection, meaning a UUID.
	ID string `json:"id"`

	Name string `json:"name"`

	// Code is arbitrary source text.
	Code string `json:"code"`

	Favorite bool `json:"favorite"`

	CreatedAt time.Time `json:"createdAt"`
}

// Project is a container of components owned by exactly one user.
// OwnerID is immutable after creation and scopes every read and write.
type Project struct {
	ID string `json:"id"`

	Name string `json:"name"`

	Description string `json:"description"`

	CreatedAt time.Time `json:"createdAt"`

	Components []Component `json:"components"`

	OwnerID string `json:"userId"`
}

// ComponentWithProject is a component annotated with its parent
// project's identity, used by the flattened per-user component views.
type ComponentWithProject struct {
	Component

	ProjectID string `json:"projectId"`

	ProjectName string `json:"projectName"`
}
