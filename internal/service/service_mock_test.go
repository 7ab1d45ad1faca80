package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/m-lukins/compforge/internal/mockstorage"
	"github.com/m-lukins/compforge/internal/models"
)

var errStorageBroken = errors.New("storage broken")

func TestCreateProjectRollsBackOnFailure(t *testing.T) {
	db := &mockstorage.StorageMock{}
	svc := New(db)

	db.On("BeginTransaction").Return(nil, nil)
	db.On("CreateProject", mock.Anything, mock.Anything, mock.Anything).Return(errStorageBroken)
	db.On("RollbackTransaction", mock.Anything).Return(nil)

	_, err := svc.CreateProject(context.Background(), "u1", models.CreateProjectRequest{
		Name:        "Demo",
		Description: "d",
	})
	require.ErrorIs(t, err, errStorageBroken)

	db.AssertCalled(t, "RollbackTransaction", mock.Anything)
	db.AssertNotCalled(t, "CommitTransaction", mock.Anything)
}

func TestDeleteProjectDoesNotCommitWhenAbsent(t *testing.T) {
	db := &mockstorage.StorageMock{}
	svc := New(db)

	db.On("BeginTransaction").Return(nil, nil)
	db.On("GetProject", mock.Anything, "u1", "p1", mock.Anything).Return(nil, false, nil)
	db.On("RollbackTransaction", mock.Anything).Return(nil)

	_, err := svc.DeleteProject(context.Background(), "u1", "p1")
	require.ErrorIs(t, err, models.ErrNotFound)

	db.AssertNotCalled(t, "DeleteProject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "CommitTransaction", mock.Anything)
}

func TestGetInternalStatsPropagatesStorageErrors(t *testing.T) {
	db := &mockstorage.StorageMock{}
	svc := New(db)

	db.On("GetNumberOfUsers", mock.Anything).Return(int64(0), errStorageBroken)

	_, err := svc.GetInternalStats(context.Background())
	assert.ErrorIs(t, err, errStorageBroken)
}

func TestPingPropagatesStorageErrors(t *testing.T) {
	db := &mockstorage.StorageMock{}
	svc := New(db)

	db.On("Ping", mock.Anything).Return(errStorageBroken)

	assert.ErrorIs(t, svc.Ping(context.Background()), errStorageBroken)
}
