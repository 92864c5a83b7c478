//go:build integration

package transact_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davis-data/davis-storage/pkg/apperrors"
	"github.com/davis-data/davis-storage/pkg/database"
	"github.com/davis-data/davis-storage/pkg/entities"
	"github.com/davis-data/davis-storage/pkg/models"
	"github.com/davis-data/davis-storage/pkg/testhelpers"
	"github.com/davis-data/davis-storage/pkg/transact"
)

func setupCoordinator(t *testing.T) (*transact.Coordinator, entities.Storage) {
	db := testhelpers.GetTestDB(t)
	db.Reset(t)

	registry := entities.NewRegistry(nil)
	coordinator := transact.NewCoordinator(
		&database.DB{Pool: db.Pool}, registry, 10*time.Second, zap.NewNop())
	outside := entities.NewStorage(db.Pool, registry, zap.NewNop())
	return coordinator, outside
}

func TestCommittedWorkIsDurable(t *testing.T) {
	coordinator, outside := setupCoordinator(t)
	ctx := context.Background()

	err := coordinator.Transact(ctx, func(s *transact.Scope) error {
		_, err := s.Entities().Create(ctx, "master", []models.Entity{models.NewFolder("kept", 0)})
		return err
	})
	require.NoError(t, err)

	found, err := outside.Query(ctx, "master", models.EntityTypeFolder, nil, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "kept", found[0].EntityName())
}

func TestFailedWorkRollsBack(t *testing.T) {
	coordinator, outside := setupCoordinator(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := coordinator.Transact(ctx, func(s *transact.Scope) error {
		if _, err := s.Entities().Create(ctx, "master", []models.Entity{models.NewFolder("lost", 0)}); err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, boom, err)

	found, err := outside.Query(ctx, "master", models.EntityTypeFolder, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

// Writes committed by a nested scope are not durable on their own: when the
// outer scope fails, everything in the shared transaction is rolled back.
func TestNestedCommitNotDurableAfterOuterFailure(t *testing.T) {
	coordinator, outside := setupCoordinator(t)
	ctx := context.Background()
	outerErr := errors.New("outer failure")

	err := coordinator.Transact(ctx, func(s *transact.Scope) error {
		innerErr := s.Transact(func(inner *transact.Scope) error {
			_, err := inner.Entities().Create(ctx, "master", []models.Entity{models.NewFolder("inner", 0)})
			return err
		})
		require.NoError(t, innerErr)
		return outerErr
	})
	assert.Equal(t, outerErr, err)

	found, err := outside.Query(ctx, "master", models.EntityTypeFolder, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestNestedFailureDoomsOuterScope(t *testing.T) {
	coordinator, outside := setupCoordinator(t)
	ctx := context.Background()
	boom := errors.New("inner failure")

	err := coordinator.Transact(ctx, func(s *transact.Scope) error {
		if _, err := s.Entities().Create(ctx, "master", []models.Entity{models.NewFolder("outer", 0)}); err != nil {
			return err
		}
		_ = s.Transact(func(*transact.Scope) error {
			return boom
		})
		// The outer function succeeds, but the doomed transaction still
		// rolls back.
		return nil
	})
	assert.Equal(t, boom, err)

	found, err := outside.Query(ctx, "master", models.EntityTypeFolder, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestScopeTimeoutRollsBack(t *testing.T) {
	coordinator, outside := setupCoordinator(t)
	ctx := context.Background()
	release := make(chan struct{})
	defer close(release)

	err := coordinator.Transact(ctx, func(s *transact.Scope) error {
		if _, err := s.Entities().Create(ctx, "master", []models.Entity{models.NewFolder("slow", 0)}); err != nil {
			return err
		}
		<-release
		return nil
	}, transact.WithTimeout(100*time.Millisecond))
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))

	found, err := outside.Query(ctx, "master", models.EntityTypeFolder, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFactsInsideScope(t *testing.T) {
	coordinator, outside := setupCoordinator(t)
	ctx := context.Background()

	var dataSetID, variableID int64
	err := coordinator.Transact(ctx, func(s *transact.Scope) error {
		created, err := s.Entities().Create(ctx, "master", []models.Entity{
			models.NewDataSet("census", 0),
			models.NewNumericalVariable("age"),
		})
		if err != nil {
			return err
		}
		dataSetID = created[0].EntityID()
		variableID = created[1].EntityID()

		_, err = s.Facts().Create(ctx, "master", []models.Individual{
			models.NewIndividual(1, dataSetID, models.NewNumericalFact(variableID, 34)),
		})
		return err
	})
	require.NoError(t, err)

	found, err := outside.QueryByIDs(ctx, "master", models.EntityTypeDataSet, []int64{dataSetID})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
