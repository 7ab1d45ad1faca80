// Package postgresdb provides a PostgreSQL-based implementation of the storage
// interface for persisting users, projects and components.
// It supports transactional operations and runs goose migrations at startup.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/m-lukins/compforge/internal/db/storage"
	"github.com/m-lukins/compforge/internal/project"
	"github.com/m-lukins/compforge/internal/user"
)

const uniqueViolationCode = "23505"

// PostgresDB is a PostgreSQL-backed implementation of the storage interface.
// Every query is bounded by the configured query timeout.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
	queryTimeout      time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables resetting the database schema before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	queryTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
		queryTimeout:      queryTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil, fmt.Errorf("error while `result.resetDB()` calling: %w", err)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil, fmt.Errorf("error while `goose.Up()` calling: %w", err)
	}

	return result, nil
}

func (db *PostgresDB) getQueryer(transaction *sql.Tx) queryer {
	if transaction == nil {
		return db.database
	}
	return transaction
}

func (db *PostgresDB) getExecutor(transaction *sql.Tx) executor {
	if transaction == nil {
		return db.database
	}
	return transaction
}

func (db *PostgresDB) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.queryTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CreateUser inserts a new user record into the database.
// Returns storage.ErrAlreadyExists if the username or email is taken.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	_, err := db.getExecutor(transaction).ExecContext(
		ctx,
		`
			INSERT INTO users (id, username, email, password_hash, avatar, visibility, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
		usr.ID,
		usr.Username,
		usr.Email,
		usr.PasswordHash,
		usr.Avatar,
		usr.Visibility,
		usr.CreatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrAlreadyExists
	}

	return err
}

func scanUser(row *sql.Row) (*user.User, bool, error) {
	usr := &user.User{}
	err := row.Scan(
		&usr.ID,
		&usr.Username,
		&usr.Email,
		&usr.PasswordHash,
		&usr.Avatar,
		&usr.Visibility,
		&usr.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return usr, true, nil
}

// GetUserByID fetches a user by their UUID from the database.
func (db *PostgresDB) GetUserByID(
	ctx context.Context,
	userID string,
	transaction *sql.Tx,
) (*user.User, bool, error) {
	if userID == "" {
		return nil, false, nil
	}

	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	return scanUser(db.getQueryer(transaction).QueryRowContext(
		ctx,
		`
			SELECT id, username, email, password_hash, avatar, visibility, created_at
				FROM users
				WHERE id = $1
		`,
		userID,
	))
}

// GetUserByLogin fetches a user by username or email. The match is
// case-insensitive, consistent with the uniqueness policy.
func (db *PostgresDB) GetUserByLogin(
	ctx context.Context,
	identifier string,
	transaction *sql.Tx,
) (*user.User, bool, error) {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	return scanUser(db.getQueryer(transaction).QueryRowContext(
		ctx,
		`
			SELECT id, username, email, password_hash, avatar, visibility, created_at
				FROM users
				WHERE lower(username) = lower($1) OR lower(email) = lower($1)
		`,
		identifier,
	))
}

// UpdateUser overwrites the stored user row, last write wins.
// Returns storage.ErrAlreadyExists if the new username or email is taken.
func (db *PostgresDB) UpdateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	_, err := db.getExecutor(transaction).ExecContext(
		ctx,
		`
			UPDATE users
				SET username = $2, email = $3, password_hash = $4, avatar = $5, visibility = $6
				WHERE id = $1
		`,
		usr.ID,
		usr.Username,
		usr.Email,
		usr.PasswordHash,
		usr.Avatar,
		usr.Visibility,
	)
	if isUniqueViolation(err) {
		return storage.ErrAlreadyExists
	}

	return err
}

// CreateProject inserts a project row and its initial components.
func (db *PostgresDB) CreateProject(
	ctx context.Context,
	proj *project.Project,
	transaction *sql.Tx,
) error {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	executor := db.getExecutor(transaction)

	_, err := executor.ExecContext(
		ctx,
		`
			INSERT INTO projects (id, owner_id, name, description, created_at)
				VALUES ($1, $2, $3, $4, $5)
		`,
		proj.ID,
		proj.OwnerID,
		proj.Name,
		proj.Description,
		proj.CreatedAt,
	)
	if err != nil {
		return err
	}

	for i := range proj.Components {
		if err := db.insertComponentWith(ctx, executor, proj.ID, &proj.Components[i]); err != nil {
			return err
		}
	}

	return nil
}

func (db *PostgresDB) insertComponentWith(
	ctx context.Context,
	executor executor,
	projectID string,
	comp *project.Component,
) error {
	_, err := executor.ExecContext(
		ctx,
		`
			INSERT INTO components (id, project_id, name, code, favorite, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
		`,
		comp.ID,
		projectID,
		comp.Name,
		comp.Code,
		comp.Favorite,
		comp.CreatedAt,
	)

	return err
}

// InsertComponent appends a component to the project's collection.
func (db *PostgresDB) InsertComponent(
	ctx context.Context,
	projectID string,
	comp *project.Component,
	transaction *sql.Tx,
) error {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	return db.insertComponentWith(ctx, db.getExecutor(transaction), projectID, comp)
}

// UpdateComponent overwrites the mutable fields of a component row,
// last write wins. The row is addressed by the (projectID, componentID)
// pair so a component id can never reach another project's collection.
func (db *PostgresDB) UpdateComponent(
	ctx context.Context,
	projectID string,
	comp *project.Component,
	transaction *sql.Tx,
) error {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	_, err := db.getExecutor(transaction).ExecContext(
		ctx,
		`
			UPDATE components
				SET name = $3, code = $4, favorite = $5
				WHERE id = $1 AND project_id = $2
		`,
		comp.ID,
		projectID,
		comp.Name,
		comp.Code,
		comp.Favorite,
	)

	return err
}

// DeleteComponent removes a component from the project's collection.
func (db *PostgresDB) DeleteComponent(
	ctx context.Context,
	projectID string,
	componentID string,
	transaction *sql.Tx,
) error {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	_, err := db.getExecutor(transaction).ExecContext(
		ctx,
		`DELETE FROM components WHERE id = $1 AND project_id = $2`,
		componentID,
		projectID,
	)

	return err
}

func (db *PostgresDB) getProjectComponents(
	ctx context.Context,
	database queryer,
	projectID string,
) ([]project.Component, error) {
	rows, err := database.QueryContext(
		ctx,
		`
			SELECT id, name, code, favorite, created_at
				FROM components
				WHERE project_id = $1
				ORDER BY created_at, id
		`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []project.Component{}
	for rows.Next() {
		var comp project.Component
		err = rows.Scan(&comp.ID, &comp.Name, &comp.Code, &comp.Favorite, &comp.CreatedAt)
		if err != nil {
			return nil, err
		}

		result = append(result, comp)
	}

	return result, rows.Err()
}

// GetProject retrieves a project with its components.
// The lookup is scoped by the owner id so a foreign project reads as absent.
func (db *PostgresDB) GetProject(
	ctx context.Context,
	ownerID string,
	projectID string,
	transaction *sql.Tx,
) (*project.Project, bool, error) {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	database := db.getQueryer(transaction)

	row := database.QueryRowContext(
		ctx,
		`
			SELECT id, owner_id, name, description, created_at
				FROM projects
				WHERE id = $1 AND owner_id = $2
		`,
		projectID,
		ownerID,
	)

	proj := &project.Project{}
	err := row.Scan(&proj.ID, &proj.OwnerID, &proj.Name, &proj.Description, &proj.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	proj.Components, err = db.getProjectComponents(ctx, database, proj.ID)
	if err != nil {
		return nil, false, err
	}

	return proj, true, nil
}

// GetProjectsByOwner retrieves all projects owned by the user,
// each with its components.
func (db *PostgresDB) GetProjectsByOwner(
	ctx context.Context,
	ownerID string,
) ([]project.Project, error) {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT id, owner_id, name, description, created_at
				FROM projects
				WHERE owner_id = $1
				ORDER BY created_at, id
		`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []project.Project{}
	for rows.Next() {
		var proj project.Project
		err = rows.Scan(&proj.ID, &proj.OwnerID, &proj.Name, &proj.Description, &proj.CreatedAt)
		if err != nil {
			return nil, err
		}

		result = append(result, proj)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		result[i].Components, err = db.getProjectComponents(ctx, db.database, result[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UpdateProject overwrites the mutable fields of a project row,
// last write wins. The owner id is never part of the update.
func (db *PostgresDB) UpdateProject(
	ctx context.Context,
	proj *project.Project,
	transaction *sql.Tx,
) error {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	_, err := db.getExecutor(transaction).ExecContext(
		ctx,
		`
			UPDATE projects
				SET name = $2, description = $3
				WHERE id = $1
		`,
		proj.ID,
		proj.Name,
		proj.Description,
	)

	return err
}

// DeleteProject removes the project row; the components table declares
// ON DELETE CASCADE so the embedded collection goes with it.
func (db *PostgresDB) DeleteProject(
	ctx context.Context,
	ownerID string,
	projectID string,
	transaction *sql.Tx,
) error {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	_, err := db.getExecutor(transaction).ExecContext(
		ctx,
		`DELETE FROM projects WHERE id = $1 AND owner_id = $2`,
		projectID,
		ownerID,
	)

	return err
}

// GetNumberOfUsers returns the total amount of registered users.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.countRows(ctx, `SELECT COUNT(*) FROM users`)
}

// GetNumberOfProjects returns the total amount of projects.
func (db *PostgresDB) GetNumberOfProjects(ctx context.Context) (int64, error) {
	return db.countRows(ctx, `SELECT COUNT(*) FROM projects`)
}

func (db *PostgresDB) countRows(ctx context.Context, query string) (int64, error) {
	ctx, cancel := db.withQueryTimeout(ctx)
	defer cancel()

	var count int64
	err := db.database.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// BeginTransaction starts a new SQL transaction and returns it.
// The caller is responsible for committing or rolling it back.
func (db *PostgresDB) BeginTransaction() (*sql.Tx, error) {
	return db.database.Begin()
}

// CommitTransaction commits the given SQL transaction.
func (db *PostgresDB) CommitTransaction(transaction *sql.Tx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred while committing transaction: %v", r)
		}
	}()

	return transaction.Commit()
}

// RollbackTransaction rolls back the given SQL transaction.
func (db *PostgresDB) RollbackTransaction(transaction *sql.Tx) error {
	return transaction.Rollback()
}

// Ping verifies connectivity with the PostgreSQL database within the
// configured connection timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf("error while `db.database.ExecContext()` calling: %w", err)
	}
	return nil
}
