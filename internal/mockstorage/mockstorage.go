// Package mockstorage provides a testify-based mock implementation
// of the storage interface. It is used for unit testing HTTP handlers
// and services by simulating storage behavior, including failures.
package mockstorage

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	"github.com/m-lukins/compforge/internal/project"
	"github.com/m-lukins/compforge/internal/user"
)

// StorageMock is a testify mock that implements the storage interface.
//
// Use it in router and service tests to simulate database behavior.
type StorageMock struct {
	mock.Mock
}

// CreateUser mocks storing a new user.
func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error {
	args := m.Called(ctx, usr, transaction)
	return args.Error(0)
}

// GetUserByID mocks a user lookup by id.
func (m *StorageMock) GetUserByID(
	ctx context.Context,
	userID string,
	transaction *sql.Tx,
) (*user.User, bool, error) {
	args := m.Called(ctx, userID, transaction)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

// GetUserByLogin mocks a user lookup by username or email.
func (m *StorageMock) GetUserByLogin(
	ctx context.Context,
	identifier string,
	transaction *sql.Tx,
) (*user.User, bool, error) {
	args := m.Called(ctx, identifier, transaction)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

// UpdateUser mocks overwriting a user row.
func (m *StorageMock) UpdateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error {
	args := m.Called(ctx, usr, transaction)
	return args.Error(0)
}

// CreateProject mocks storing a new project.
func (m *StorageMock) CreateProject(
	ctx context.Context,
	proj *project.Project,
	transaction *sql.Tx,
) error {
	args := m.Called(ctx, proj, transaction)
	return args.Error(0)
}

// GetProjectsByOwner mocks listing the projects of an owner.
func (m *StorageMock) GetProjectsByOwner(
	ctx context.Context,
	ownerID string,
) ([]project.Project, error) {
	args := m.Called(ctx, ownerID)
	projects, _ := args.Get(0).([]project.Project)
	return projects, args.Error(1)
}

// GetProject mocks an owner-scoped project lookup.
func (m *StorageMock) GetProject(
	ctx context.Context,
	ownerID string,
	projectID string,
	transaction *sql.Tx,
) (*project.Project, bool, error) {
	args := m.Called(ctx, ownerID, projectID, transaction)
	proj, _ := args.Get(0).(*project.Project)
	return proj, args.Bool(1), args.Error(2)
}

// UpdateProject mocks overwriting a project row.
func (m *StorageMock) UpdateProject(
	ctx context.Context,
	proj *project.Project,
	transaction *sql.Tx,
) error {
	args := m.Called(ctx, proj, transaction)
	return args.Error(0)
}

// DeleteProject mocks a cascading project deletion.
func (m *StorageMock) DeleteProject(
	ctx context.Context,
	ownerID string,
	projectID string,
	transaction *sql.Tx,
) error {
	args := m.Called(ctx, ownerID, projectID, transaction)
	return args.Error(0)
}

// InsertComponent mocks appending a component to a project.
func (m *StorageMock) InsertComponent(
	ctx context.Context,
	projectID string,
	comp *project.Component,
	transaction *sql.Tx,
) error {
	args := m.Called(ctx, projectID, comp, transaction)
	return args.Error(0)
}

// UpdateComponent mocks overwriting a component row.
func (m *StorageMock) UpdateComponent(
	ctx context.Context,
	projectID string,
	comp *project.Component,
	transaction *sql.Tx,
) error {
	args := m.Called(ctx, projectID, comp, transaction)
	return args.Error(0)
}

// DeleteComponent mocks removing a component.
func (m *StorageMock) DeleteComponent(
	ctx context.Context,
	projectID string,
	componentID string,
	transaction *sql.Tx,
) error {
	args := m.Called(ctx, projectID, componentID, transaction)
	return args.Error(0)
}

// GetNumberOfUsers mocks the user count used by internal stats.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// GetNumberOfProjects mocks the project count used by internal stats.
func (m *StorageMock) GetNumberOfProjects(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// BeginTransaction mocks the beginning of a transaction.
func (m *StorageMock) BeginTransaction() (*sql.Tx, error) {
	args := m.Called()
	tx, _ := args.Get(0).(*sql.Tx)
	return tx, args.Error(1)
}

// CommitTransaction mocks committing a transaction.
func (m *StorageMock) CommitTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

// RollbackTransaction mocks rolling back a transaction.
func (m *StorageMock) RollbackTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

// Ping mocks the storage health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks releasing the storage resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
