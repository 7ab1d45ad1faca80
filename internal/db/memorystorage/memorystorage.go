// Package memorystorage provides an in-memory storage backend.
// It reuses the jsondb implementation without the file persistence,
// which makes it the default for tests and for running without
// a configured database.
package memorystorage

import (
	"context"

	"github.com/m-lukins/compforge/internal/db/jsondb"
	"github.com/m-lukins/compforge/internal/project"
	"github.com/m-lukins/compforge/internal/user"
)

type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: &jsondb.JSONDB{
			Cache: jsondb.CacheStruct{
				Users:    map[string]*user.User{},
				Projects: map[string]*project.Project{},
			},
		},
	}, nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}

func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
