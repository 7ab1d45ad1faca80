// Package service implements the application operations over the storage
// layer: registration and authentication, profile management, and
// ownership-scoped project/component CRUD. Every project and component
// lookup is filtered by the owner id inside the storage query, so a
// resource owned by another user is reported as not found.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/m-lukins/compforge/internal/auth"
	"github.com/m-lukins/compforge/internal/db/storage"
	"github.com/m-lukins/compforge/internal/models"
	"github.com/m-lukins/compforge/internal/project"
	"github.com/m-lukins/compforge/internal/user"
)

type transactioner interface {
	BeginTransaction() (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error
}

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error

	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, bool, error)

	GetUserByLogin(ctx context.Context, identifier string, transaction *sql.Tx) (*user.User, bool, error)

	UpdateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error
}

type projectKeeper interface {
	CreateProject(ctx context.Context, proj *project.Project, transaction *sql.Tx) error

	GetProjectsByOwner(ctx context.Context, ownerID string) ([]project.Project, error)

	GetProject(
		ctx context.Context,
		ownerID string,
		projectID string,
		transaction *sql.Tx,
	) (*project.Project, bool, error)

	UpdateProject(ctx context.Context, proj *project.Project, transaction *sql.Tx) error

	DeleteProject(
		ctx context.Context,
		ownerID string,
		projectID string,
		transaction *sql.Tx,
	) error
}

type componentKeeper interface {
	InsertComponent(
		ctx context.Context,
		projectID string,
		comp *project.Component,
		transaction *sql.Tx,
	) error

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
}

type statsKeeper interface {
	GetNumberOfUsers(ctx context.Context) (int64, error)

	GetNumberOfProjects(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type appStorage interface {
	transactioner
	userKeeper
	projectKeeper
	componentKeeper
	statsKeeper
	pinger
}

// Service holds the application operations. It is stateless between
// requests; all persistent state lives in the storage backend.
type Service struct {
	db appStorage
}

// New constructs a Service over the given storage backend.
func New(db appStorage) *Service {
	return &Service{db: db}
}

// Register creates a new user account with a bcrypt-hashed password.
// Duplicate username or email maps to models.ErrConflict.
func (s *Service) Register(ctx context.Context, req models.SignupRequest) (*user.User, error) {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", models.ErrValidation)
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	usr := &user.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Visibility:   user.VisibilityPublic,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.db.CreateUser(ctx, usr, nil); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: username or email is taken", models.ErrConflict)
		}
		return nil, err
	}

	return usr, nil
}

// Authenticate verifies a username-or-email plus password pair.
// Unknown identifier and wrong password produce the same error, so the
// response never discloses which part was wrong.
func (s *Service) Authenticate(ctx context.Context, req models.SigninRequest) (*user.User, error) {
	usr, found, err := s.db.GetUserByLogin(ctx, req.Identifier, nil)
	if err != nil {
		return nil, err
	}
	if !found || !auth.CheckPassword(usr.PasswordHash, req.Password) {
		return nil, fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
	}

	return usr, nil
}

// GetProfile returns the authenticated user's profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*user.User, error) {
	usr, found, err := s.db.GetUserByID(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: user", models.ErrNotFound)
	}

	return usr, nil
}

// UpdateProfile applies a whitelist patch to the target user's profile.
// Only the owner may update their profile; fields absent from the patch
// are left untouched.
func (s *Service) UpdateProfile(
	ctx context.Context,
	requesterID string,
	targetUserID string,
	patch models.ProfilePatch,
) (*user.User, error) {
	if requesterID != targetUserID {
		return nil, fmt.Errorf("%w: you can update only your own profile", models.ErrForbidden)
	}
	if patch.Username != nil && *patch.Username == "" {
		return nil, fmt.Errorf("%w: username must not be empty", models.ErrValidation)
	}
	if patch.Email != nil && *patch.Email == "" {
		return nil, fmt.Errorf("%w: email must not be empty", models.ErrValidation)
	}

	usr, err := s.GetProfile(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	if patch.Username != nil {
		usr.Username = *patch.Username
	}
	if patch.Email != nil {
		usr.Email = *patch.Email
	}
	if patch.Avatar != nil {
		usr.Avatar = *patch.Avatar
	}

	if err := s.db.UpdateUser(ctx, usr, nil); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: username or email is taken", models.ErrConflict)
		}
		return nil, err
	}

	return usr, nil
}

// ChangePassword verifies the current password and stores a hash of the
// new one. The stored hash is untouched when verification fails.
func (s *Service) ChangePassword(
	ctx context.Context,
	userID string,
	req models.ChangePasswordRequest,
) error {
	usr, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	if !auth.CheckPassword(usr.PasswordHash, req.CurrentPassword) {
		return fmt.Errorf("%w: current password is incorrect", models.ErrUnauthorized)
	}

	usr.PasswordHash, err = auth.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	return s.db.UpdateUser(ctx, usr, nil)
}

// UpdateVisibility switches the profile between public and private.
func (s *Service) UpdateVisibility(
	ctx context.Context,
	userID string,
	visibility string,
) (*user.User, error) {
	if !funk.ContainsString([]string{user.VisibilityPublic, user.VisibilityPrivate}, visibility) {
		return nil, fmt.Errorf("%w: visibility must be public or private", models.ErrValidation)
	}

	usr, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	usr.Visibility = visibility

	if err := s.db.UpdateUser(ctx, usr, nil); err != nil {
		return nil, err
	}

	return usr, nil
}

// ListProjects returns every project owned by the caller.
func (s *Service) ListProjects(ctx context.Context, ownerID string) ([]project.Project, error) {
	return s.db.GetProjectsByOwner(ctx, ownerID)
}

// CreateProject creates a project, optionally with initial components.
func (s *Service) CreateProject(
	ctx context.Context,
	ownerID string,
	req models.CreateProjectRequest,
) (*project.Project, error) {
	if req.Name == "" || req.Description == "" {
		return nil, fmt.Errorf("%w: name and description are required", models.ErrValidation)
	}

	now := time.Now().UTC()
	proj := &project.Project{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		Components:  make([]project.Component, 0, len(req.Components)),
		OwnerID:     ownerID,
	}
	for _, input := range req.Components {
		if input.Name == "" || input.Code == "" {
			return nil, fmt.Errorf("%w: component name and code are required", models.ErrValidation)
		}
		proj.Components = append(proj.Components, project.Component{
			ID:        uuid.New().String(),
			Name:      input.Name,
			Code:      input.Code,
			Favorite:  input.Favorite,
			CreatedAt: now,
		})
	}

	tx, err := s.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = s.db.RollbackTransaction(tx)
	}()

	if err := s.db.CreateProject(ctx, proj, tx); err != nil {
		return nil, err
	}

	if err := s.db.CommitTransaction(tx); err != nil {
		return nil, err
	}

	return proj, nil
}

// GetProject returns a project owned by the caller together with its
// components.
func (s *Service) GetProject(
	ctx context.Context,
	ownerID string,
	projectID string,
) (*project.Project, error) {
	proj, found, err := s.db.GetProject(ctx, ownerID, projectID, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: project", models.ErrNotFound)
	}

	return proj, nil
}

// UpdateProject applies a whitelist patch to the project. Fields absent
// from the patch are left untouched; the owner id is immutable.
func (s *Service) UpdateProject(
	ctx context.Context,
	ownerID string,
	projectID string,
	patch models.ProjectPatch,
) (*project.Project, error) {
	if patch.Name != nil && *patch.Name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", models.ErrValidation)
	}
	if patch.Description != nil && *patch.Description == "" {
		return nil, fmt.Errorf("%w: description must not be empty", models.ErrValidation)
	}

	proj, err := s.GetProject(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		proj.Name = *patch.Name
	}
	if patch.Description != nil {
		proj.Description = *patch.Description
	}

	if err := s.db.UpdateProject(ctx, proj, nil); err != nil {
		return nil, err
	}

	return proj, nil
}

// DeleteProject removes a project and all of its components atomically
// and returns the deleted snapshot.
func (s *Service) DeleteProject(
	ctx context.Context,
	ownerID string,
	projectID string,
) (*project.Project, error) {
	tx, err := s.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = s.db.RollbackTransaction(tx)
	}()

	proj, found, err := s.db.GetProject(ctx, ownerID, projectID, tx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: project", models.ErrNotFound)
	}

	if err := s.db.DeleteProject(ctx, ownerID, projectID, tx); err != nil {
		return nil, err
	}

	if err := s.db.CommitTransaction(tx); err != nil {
		return nil, err
	}

	return proj, nil
}

// ListComponents returns the components of a project owned by the caller.
func (s *Service) ListComponents(
	ctx context.Context,
	ownerID string,
	projectID string,
) ([]project.Component, error) {
	proj, err := s.GetProject(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}

	return proj.Components, nil
}

// CreateComponent appends a component to a project owned by the caller.
func (s *Service) CreateComponent(
	ctx context.Context,
	ownerID string,
	projectID string,
	input models.ComponentInput,
) (*project.Component, error) {
	if input.Name == "" || input.Code == "" {
		return nil, fmt.Errorf("%w: name and code are required", models.ErrValidation)
	}

	proj, err := s.GetProject(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}

	comp := &project.Component{
		ID:        uuid.New().String(),
		Name:      input.Name,
		Code:      input.Code,
		Favorite:  input.Favorite,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.InsertComponent(ctx, proj.ID, comp, nil); err != nil {
		return nil, err
	}

	return comp, nil
}

// getComponent resolves the owner-scoped parent project first and only
// then looks the component up inside it, so a component id can never
// reach a project the caller does not own.
func (s *Service) getComponent(
	ctx context.Context,
	ownerID string,
	projectID string,
	componentID string,
) (*project.Project, *project.Component, error) {
	proj, err := s.GetProject(ctx, ownerID, projectID)
	if err != nil {
		return nil, nil, err
	}

	for i := range proj.Components {
		if proj.Components[i].ID == componentID {
			return proj, &proj.Components[i], nil
		}
	}

	return nil, nil, fmt.Errorf("%w: component", models.ErrNotFound)
}

// GetComponent returns a single component of a project owned by the caller.
func (s *Service) GetComponent(
	ctx context.Context,
	ownerID string,
	projectID string,
	componentID string,
) (*project.Component, error) {
	_, comp, err := s.getComponent(ctx, ownerID, projectID, componentID)
	if err != nil {
		return nil, err
	}

	return comp, nil
}

// UpdateComponent applies a whitelist patch to a component. Identity,
// creation time and the parent project cannot be changed.
func (s *Service) UpdateComponent(
	ctx context.Context,
	ownerID string,
	projectID string,
	componentID string,
	patch models.ComponentPatch,
) (*project.Component, error) {
	if patch.Name != nil && *patch.Name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", models.ErrValidation)
	}
	if patch.Code != nil && *patch.Code == "" {
		return nil, fmt.Errorf("%w: code must not be empty", models.ErrValidation)
	}

	proj, comp, err := s.getComponent(ctx, ownerID, projectID, componentID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		comp.Name = *patch.Name
	}
	if patch.Code != nil {
		comp.Code = *patch.Code
	}
	if patch.Favorite != nil {
		comp.Favorite = *patch.Favorite
	}

	if err := s.db.UpdateComponent(ctx, proj.ID, comp, nil); err != nil {
		return nil, err
	}

	return comp, nil
}

// DeleteComponent removes a single component from a project owned by
// the caller.
func (s *Service) DeleteComponent(
	ctx context.Context,
	ownerID string,
	projectID string,
	componentID string,
) error {
	proj, comp, err := s.getComponent(ctx, ownerID, projectID, componentID)
	if err != nil {
		return err
	}

	return s.db.DeleteComponent(ctx, proj.ID, comp.ID, nil)
}

// ToggleFavorite flips the favorite flag of a component. Two calls in a
// row restore the original value.
func (s *Service) ToggleFavorite(
	ctx context.Context,
	ownerID string,
	projectID string,
	componentID string,
) (*project.Component, error) {
	proj, comp, err := s.getComponent(ctx, ownerID, projectID, componentID)
	if err != nil {
		return nil, err
	}

	comp.Favorite = !comp.Favorite

	if err := s.db.UpdateComponent(ctx, proj.ID, comp, nil); err != nil {
		return nil, err
	}

	return comp, nil
}

func annotateComponents(projects []project.Project) []project.ComponentWithProject {
	result := []project.ComponentWithProject{}
	for _, proj := range projects {
		for _, comp := range proj.Components {
			result = append(result, project.ComponentWithProject{
				Component:   comp,
				ProjectID:   proj.ID,
				ProjectName: proj.Name,
			})
		}
	}

	return result
}

// ListAllComponents flattens the components of every project owned by
// the caller, annotating each with its parent project's id and name.
func (s *Service) ListAllComponents(
	ctx context.Context,
	ownerID string,
) ([]project.ComponentWithProject, error) {
	projects, err := s.db.GetProjectsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	return annotateComponents(projects), nil
}

// ListFavoriteComponents is ListAllComponents filtered to favorites.
func (s *Service) ListFavoriteComponents(
	ctx context.Context,
	ownerID string,
) ([]project.ComponentWithProject, error) {
	all, err := s.ListAllComponents(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	return funk.Filter(all, func(comp project.ComponentWithProject) bool {
		return comp.Favorite
	}).([]project.ComponentWithProject), nil
}

// GetInternalStats returns totals of registered users and projects.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	projects, err := s.db.GetNumberOfProjects(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		Users:    users,
		Projects: projects,
	}, nil
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
