package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
	"github.com/rl1809/warehouse-inventory/internal/port"
)

type repository interface {
	port.InventoryRepository
	port.AssociateRepository
}

// testIDs hands out ids that stay unique across runs against a shared database.
var testIDs atomic.Int64

func init() {
	testIDs.Store(time.Now().UnixNano() / 1000)
}

func nextTestID() int64 { return testIDs.Add(1) }

func seedRecord(t *testing.T, repo repository, label, location string, quantity int) domain.InventoryRecord {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := domain.InventoryRecord{
		RecordID:           nextTestID(),
		LabelID:            label,
		StorageLocation:    location,
		QuantityOnPallet:   quantity,
		ProductDescription: "Blue widgets " + label,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	entry := domain.TransactionRecord{
		ID:                nextTestID(),
		InventoryRecordID: record.RecordID,
		Action:            domain.ActionCreated,
		Timestamp:         now,
		PerformedBy:       7,
		PerformedByName:   "alice",
		NewQuantity:       domain.IntPtr(quantity),
		NewLocation:       domain.StringPtr(location),
	}
	record.LatestTransactionID = entry.ID
	require.NoError(t, repo.CreateRecord(context.Background(), record, entry))
	return record
}

func moveTo(location string) port.MutateFunc {
	return func(r *domain.InventoryRecord) (*domain.TransactionRecord, error) {
		previous := r.StorageLocation
		r.StorageLocation = location
		now := time.Now().UTC()
		entry := &domain.TransactionRecord{
			ID:                nextTestID(),
			InventoryRecordID: r.RecordID,
			Action:            domain.ActionMoveLocation,
			Timestamp:         now,
			PerformedBy:       7,
			PerformedByName:   "alice",
			PreviousLocation:  domain.StringPtr(previous),
			NewLocation:       domain.StringPtr(location),
		}
		r.LatestTransactionID = entry.ID
		r.UpdatedAt = now
		return entry, nil
	}
}

func runRepositoryContract(t *testing.T, repo repository) {
	ctx := context.Background()

	t.Run("create then get", func(t *testing.T) {
		seeded := seedRecord(t, repo, "LBL-"+fmt.Sprint(nextTestID()), "A1", 12)

		got, err := repo.GetRecord(ctx, seeded.RecordID)
		require.NoError(t, err)
		assert.Equal(t, seeded.LabelID, got.LabelID)
		assert.Equal(t, "A1", got.StorageLocation)
		assert.Equal(t, 12, got.QuantityOnPallet)
		assert.Equal(t, seeded.LatestTransactionID, got.LatestTransactionID)
		assert.Nil(t, got.ScheduledForDeletion)
		assert.True(t, seeded.CreatedAt.Equal(got.CreatedAt))

		history, err := repo.History(ctx, seeded.RecordID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, domain.ActionCreated, history[0].Action)
		assert.Equal(t, 12, *history[0].NewQuantity)
		assert.Nil(t, history[0].PreviousQuantity)
	})

	t.Run("get unknown record", func(t *testing.T) {
		_, err := repo.GetRecord(ctx, nextTestID())
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = repo.History(ctx, nextTestID())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("mutate appends entry atomically", func(t *testing.T) {
		seeded := seedRecord(t, repo, "LBL-"+fmt.Sprint(nextTestID()), "A1", 5)

		updated, err := repo.MutateRecord(ctx, seeded.RecordID, moveTo("B2"))
		require.NoError(t, err)
		assert.Equal(t, "B2", updated.StorageLocation)
		assert.Equal(t, seeded.Version+1, updated.Version)

		history, err := repo.History(ctx, seeded.RecordID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, domain.ActionMoveLocation, history[0].Action)
		assert.Equal(t, updated.LatestTransactionID, history[0].ID)
		assert.Equal(t, "A1", *history[0].PreviousLocation)
	})

	t.Run("mutate rollback leaves no trace", func(t *testing.T) {
		seeded := seedRecord(t, repo, "LBL-"+fmt.Sprint(nextTestID()), "A1", 5)
		boom := errors.New("boom")

		_, err := repo.MutateRecord(ctx, seeded.RecordID, func(r *domain.InventoryRecord) (*domain.TransactionRecord, error) {
			r.StorageLocation = "ZZ"
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.GetRecord(ctx, seeded.RecordID)
		require.NoError(t, err)
		assert.Equal(t, "A1", got.StorageLocation)

		history, err := repo.History(ctx, seeded.RecordID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("mutate unknown record", func(t *testing.T) {
		_, err := repo.MutateRecord(ctx, nextTestID(), moveTo("B2"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("find by criteria", func(t *testing.T) {
		tag := fmt.Sprint(nextTestID())
		first := seedRecord(t, repo, "FIND-"+tag+"-a", "C3", 4)
		second := seedRecord(t, repo, "find-"+tag+"-b", "C3", 9)
		seedRecord(t, repo, "OTHER-"+tag, "D4", 4)

		label := "find-" + tag
		records, err := repo.FindRecords(ctx, domain.Criteria{LabelID: &label})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, first.RecordID, records[0].RecordID)
		assert.Equal(t, second.RecordID, records[1].RecordID)

		quantity := 9
		records, err = repo.FindRecords(ctx, domain.Criteria{LabelID: &label, QuantityOnPallet: &quantity})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, second.RecordID, records[0].RecordID)

		id := first.RecordID
		records, err = repo.FindRecords(ctx, domain.Criteria{RecordID: &id})
		require.NoError(t, err)
		require.Len(t, records, 1)

		wildcard := "FIND_" + tag
		records, err = repo.FindRecords(ctx, domain.Criteria{LabelID: &wildcard})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	// Case folding is only guaranteed for ASCII; SQLite's LOWER leaves other
	// letters alone. Non-ASCII text still matches when the case agrees.
	t.Run("find folds ascii case", func(t *testing.T) {
		tag := fmt.Sprint(nextTestID())
		seeded := seedRecord(t, repo, "Größe-"+tag+"-MiXeD", "E5", 3)

		for _, query := range []string{tag + "-mixed", tag + "-MIXED", "Größe-" + tag} {
			label := query
			records, err := repo.FindRecords(ctx, domain.Criteria{LabelID: &label})
			require.NoError(t, err)
			require.Len(t, records, 1, "query %q", label)
			assert.Equal(t, seeded.RecordID, records[0].RecordID)
		}
	})

	t.Run("find scheduled for deletion", func(t *testing.T) {
		seeded := seedRecord(t, repo, "DEL-"+fmt.Sprint(nextTestID()), "A1", 1)
		_, err := repo.MutateRecord(ctx, seeded.RecordID, func(r *domain.InventoryRecord) (*domain.TransactionRecord, error) {
			now := time.Now().UTC()
			r.ScheduledForDeletion = &now
			entry := &domain.TransactionRecord{
				ID:                nextTestID(),
				InventoryRecordID: r.RecordID,
				Action:            domain.ActionDeleted,
				Timestamp:         now,
				PerformedBy:       9,
				PerformedByName:   "bob",
			}
			r.LatestTransactionID = entry.ID
			return entry, nil
		})
		require.NoError(t, err)

		label := seeded.LabelID
		records, err := repo.FindRecords(ctx, domain.Criteria{LabelID: &label, OnlyScheduledForDeletion: true})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.NotNil(t, records[0].ScheduledForDeletion)
	})

	t.Run("concurrent mutations serialize", func(t *testing.T) {
		seeded := seedRecord(t, repo, "CONC-"+fmt.Sprint(nextTestID()), "A1", 0)
		const workers = 10

		var wg sync.WaitGroup
		var committed atomic.Int32
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.MutateRecord(ctx, seeded.RecordID, moveTo(fmt.Sprintf("W%d", i)))
				if err == nil {
					committed.Add(1)
				}
			}(i)
		}
		wg.Wait()

		history, err := repo.History(ctx, seeded.RecordID)
		require.NoError(t, err)
		assert.Len(t, history, int(committed.Load())+1)

		got, err := repo.GetRecord(ctx, seeded.RecordID)
		require.NoError(t, err)
		assert.Equal(t, history[0].ID, got.LatestTransactionID)
		assert.Equal(t, *history[0].NewLocation, got.StorageLocation)
	})

	t.Run("associates", func(t *testing.T) {
		name := fmt.Sprintf("assoc-%d", nextTestID())
		associate := domain.Associate{
			ID:           nextTestID(),
			Name:         name,
			PasswordHash: "hash",
			IsManager:    true,
			CreatedAt:    time.Now().UTC(),
		}
		require.NoError(t, repo.CreateAssociate(ctx, associate))

		byName, err := repo.GetAssociateByName(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, associate.ID, byName.ID)
		assert.True(t, byName.IsManager)

		byID, err := repo.GetAssociateByID(ctx, associate.ID)
		require.NoError(t, err)
		assert.Equal(t, name, byID.Name)

		duplicate := associate
		duplicate.ID = nextTestID()
		assert.Error(t, repo.CreateAssociate(ctx, duplicate))

		_, err = repo.GetAssociateByName(ctx, "nobody-"+name)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
