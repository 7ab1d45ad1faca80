// Package storage declares the persistence contract implemented by the
// PostgreSQL, JSON-file and in-memory backends.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-lukins/compforge/internal/project"
	"github.com/m-lukins/compforge/internal/user"
)

// ErrAlreadyExists is returned by CreateUser and UpdateUser when a
// unique field (username or email) is already taken.
var ErrAlreadyExists = errors.New("unique field already taken")

// Storage is the full persistence surface. Every lookup of a project or
// component is scoped by the owner id inside the query itself, so an
// object owned by another user is indistinguishable from a missing one.
//
// The transaction parameter may be nil, in which case the operation runs
// on the shared connection. Backends without transactions accept and
// ignore it.
type Storage interface {
	CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error

	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, bool, error)

	// GetUserByLogin resolves a user by username or email.
	GetUserByLogin(ctx context.Context, identifier string, transaction *sql.Tx) (*user.User, bool, error)

	// UpdateUser overwrites the stored row with the given value,
	// last write wins.
	UpdateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error

	CreateProject(ctx context.Context, proj *project.Project, transaction *sql.Tx) error

	// GetProjectsByOwner returns every project of the owner together
	// with its components.
	GetProjectsByOwner(ctx context.Context, ownerID string) ([]project.Project, error)

	GetProject(
		ctx context.Context,
		ownerID string,
		projectID string,
		transaction *sql.Tx,
	) (*project.Project, bool, error)

	UpdateProject(ctx context.Context, proj *project.Project, transaction *sql.Tx) error

	// DeleteProject removes the project row and cascades to its
	// components.
	DeleteProject(
		ctx context.Context,
		ownerID string,
		projectID string,
		transaction *sql.Tx,
	) error

	InsertComponent(
		ctx context.Context,
		projectID string,
		comp *project.Component,
		transaction *sql.Tx,
	) error

	// UpdateComponent overwrites the mutable fields of the component
	// addressed by the (projectID, componentID) pair.
	UpdateComponent(
		ctx context.Context,
		projectID string,
		comp *project.Component,
		transaction *sql.Tx,
	) error

	DeleteComponent(
		ctx context.Context,
		projectID string,
		componentID string,
		transaction *sql.Tx,
	) error

	GetNumberOfUsers(ctx context.Context) (int64, error)

	GetNumberOfProjects(ctx context.Context) (int64, error)

	BeginTransaction() (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error

	Ping(ctx context.Context) error

	Close() error
}
