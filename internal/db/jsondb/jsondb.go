// Package jsondb implements the storage interface on top of a single
// JSON snapshot file. The whole dataset is kept in memory and flushed
// to disk on Close. Transactions are accepted and ignored.
package jsondb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/m-lukins/compforge/internal/db/storage"
	"github.com/m-lukins/compforge/internal/project"
	"github.com/m-lukins/compforge/internal/user"
)

// JSONDB is a file-backed storage. The zero value is not usable,
// construct it with New or fill the Cache explicitly (memorystorage
// does the latter).
type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

// CacheStruct is the serialized shape of the database file.
type CacheStruct struct {
	Users    map[string]*user.User
	Projects map[string]*project.Project
}

func initDBFile(fileName string) error {
	dbFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(dbFile, `{
	"Users": {},
	"Projects": {}
}`)
	if err != nil {
		return err
	}
	return dbFile.Close()
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %s", err)
	}

	file, err2 := os.OpenFile(fileName, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err2 != nil {
		return fmt.Errorf("error opening file: %s", err2)
	}
	defer file.Close()

	_, err = file.Write(jsonData)
	if err != nil {
		return fmt.Errorf("error writing to file: %s", err)
	}

	return nil
}

func parseJSONFile(fileName string, cacheMap *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(cacheMap)
	if err != nil {
		return err
	}

	return nil
}

// New loads the database file, creating an empty one if it does not exist.
func New(fileName string) (*JSONDB, error) {
	db := JSONDB{
		fileName: fileName,
		Cache:    CacheStruct{},
	}

	err := parseJSONFile(db.fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		err := initDBFile(fileName)
		if err != nil {
			return nil, err
		}
		err = parseJSONFile(db.fileName, &db.Cache)
		if err != nil {
			return nil, err
		}
	}

	if db.Cache.Users == nil {
		db.Cache.Users = map[string]*user.User{}
	}
	if db.Cache.Projects == nil {
		db.Cache.Projects = map[string]*project.Project{}
	}

	return &db, nil
}

func cloneUser(usr *user.User) *user.User {
	clone := *usr
	return &clone
}

func cloneProject(proj *project.Project) *project.Project {
	clone := *proj
	clone.Components = make([]project.Component, len(proj.Components))
	copy(clone.Components, proj.Components)
	return &clone
}

func (db *JSONDB) isLoginTaken(usr *user.User) bool {
	for id, existing := range db.Cache.Users {
		if id == usr.ID {
			continue
		}
		if strings.EqualFold(existing.Username, usr.Username) ||
			strings.EqualFold(existing.Email, usr.Email) {
			return true
		}
	}

	return false
}

// CreateUser stores a new user. Returns storage.ErrAlreadyExists if the
// username or email is taken.
func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isLoginTaken(usr) {
		return storage.ErrAlreadyExists
	}
	db.Cache.Users[usr.ID] = cloneUser(usr)

	return nil
}

// GetUserByID returns the user with the given id.
func (db *JSONDB) GetUserByID(
	ctx context.Context,
	userID string,
	transaction *sql.Tx,
) (*user.User, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	usr, found := db.Cache.Users[userID]
	if !found {
		return nil, false, nil
	}

	return cloneUser(usr), true, nil
}

// GetUserByLogin resolves a user by username or email. The match is
// case-insensitive, consistent with the uniqueness policy.
func (db *JSONDB) GetUserByLogin(
	ctx context.Context,
	identifier string,
	transaction *sql.Tx,
) (*user.User, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, usr := range db.Cache.Users {
		if strings.EqualFold(usr.Username, identifier) || strings.EqualFold(usr.Email, identifier) {
			return cloneUser(usr), true, nil
		}
	}

	return nil, false, nil
}

// UpdateUser overwrites the stored user, last write wins.
func (db *JSONDB) UpdateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.isLoginTaken(usr) {
		return storage.ErrAlreadyExists
	}
	db.Cache.Users[usr.ID] = cloneUser(usr)

	return nil
}

// CreateProject stores a new project with its components.
func (db *JSONDB) CreateProject(
	ctx context.Context,
	proj *project.Project,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.Cache.Projects[proj.ID] = cloneProject(proj)

	return nil
}

// GetProject returns a project scoped by its owner id.
func (db *JSONDB) GetProject(
	ctx context.Context,
	ownerID string,
	projectID string,
	transaction *sql.Tx,
) (*project.Project, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	proj, found := db.Cache.Projects[projectID]
	if !found || proj.OwnerID != ownerID {
		return nil, false, nil
	}

	return cloneProject(proj), true, nil
}

// GetProjectsByOwner returns every project of the owner, sorted by id
// for deterministic output.
func (db *JSONDB) GetProjectsByOwner(
	ctx context.Context,
	ownerID string,
) ([]project.Project, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := []project.Project{}
	for _, proj := range db.Cache.Projects {
		if proj.OwnerID == ownerID {
			result = append(result, *cloneProject(proj))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// UpdateProject overwrites the mutable fields of a stored project.
func (db *JSONDB) UpdateProject(
	ctx context.Context,
	proj *project.Project,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, found := db.Cache.Projects[proj.ID]
	if !found {
		return nil
	}
	stored.Name = proj.Name
	stored.Description = proj.Description

	return nil
}

// DeleteProject removes the project together with its components.
func (db *JSONDB) DeleteProject(
	ctx context.Context,
	ownerID string,
	projectID string,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	proj, found := db.Cache.Projects[projectID]
	if found && proj.OwnerID == ownerID {
		delete(db.Cache.Projects, projectID)
	}

	return nil
}

// InsertComponent appends a component to the project's collection.
func (db *JSONDB) InsertComponent(
	ctx context.Context,
	projectID string,
	comp *project.Component,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	proj, found := db.Cache.Projects[projectID]
	if !found {
		return nil
	}
	proj.Components = append(proj.Components, *comp)

	return nil
}

// UpdateComponent overwrites the mutable fields of a component,
// addressed by the (projectID, componentID) pair.
func (db *JSONDB) UpdateComponent(
	ctx context.Context,
	projectID string,
	comp *project.Component,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	proj, found := db.Cache.Projects[projectID]
	if !found {
		return nil
	}
	for i := range proj.Components {
		if proj.Components[i].ID == comp.ID {
			proj.Components[i].Name = comp.Name
			proj.Components[i].Code = comp.Code
			proj.Components[i].Favorite = comp.Favorite
			return nil
		}
	}

	return nil
}

// DeleteComponent removes a component from the project's collection.
func (db *JSONDB) DeleteComponent(
	ctx context.Context,
	projectID string,
	componentID string,
	transaction *sql.Tx,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	proj, found := db.Cache.Projects[projectID]
	if !found {
		return nil
	}
	for i := range proj.Components {
		if proj.Components[i].ID == componentID {
			proj.Components = append(proj.Components[:i], proj.Components[i+1:]...)
			return nil
		}
	}

	return nil
}

// GetNumberOfUsers returns the total amount of registered users.
func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

// GetNumberOfProjects returns the total amount of projects.
func (db *JSONDB) GetNumberOfProjects(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Projects)), nil
}

// BeginTransaction is a no-op for the file backend.
func (db *JSONDB) BeginTransaction() (*sql.Tx, error) {
	return nil, nil
}

// CommitTransaction is a no-op for the file backend.
func (db *JSONDB) CommitTransaction(transaction *sql.Tx) error {
	return nil
}

// RollbackTransaction is a no-op for the file backend.
func (db *JSONDB) RollbackTransaction(transaction *sql.Tx) error {
	return nil
}

// Ping always succeeds for the file backend.
func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close flushes the in-memory dataset to the database file.
func (db *JSONDB) Close() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return writeToJSONFile(db.fileName, db.Cache)
}
