package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
	"github.com/rl1809/warehouse-inventory/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

// CreateRequest carries the fields of a new inventory record. Nil location
// and quantity fall back to the HOLD and uncounted sentinels.
type CreateRequest struct {
	LabelID            string
	ProductDescription string
	StorageLocation    *string
	QuantityOnPallet   *int
}

type InventoryService struct {
	repo     port.InventoryRepository
	ids      port.IDGenerator
	cache    port.CacheRepository
	recorder port.TransitionRecorder
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*InventoryService)

// WithCache enables request-id deduplication in CreateOnce.
func WithCache(cache port.CacheRepository) Option {
	return func(s *InventoryService) { s.cache = cache }
}

func WithRecorder(recorder port.TransitionRecorder) Option {
	return func(s *InventoryService) { s.recorder = recorder }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *InventoryService) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *InventoryService) { s.now = now }
}

func NewInventoryService(repo port.InventoryRepository, ids port.IDGenerator, opts ...Option) *InventoryService {
	s := &InventoryService{
		repo:   repo,
		ids:    ids,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InventoryService) Create(ctx context.Context, req CreateRequest, by *domain.Principal) (record *domain.InventoryRecord, err error) {
	defer s.observe(domain.ActionCreated, time.Now(), &err)

	rec, entry, err := s.prepareCreate(req, by)
	if err != nil {
		return nil, err
	}
	return s.commitCreate(ctx, rec, entry)
}

// CreateOnce behaves like Create but rejects a second submission carrying the
// same request ID from the same associate with ErrDuplicateRequest.
func (s *InventoryService) CreateOnce(ctx context.Context, requestID string, req CreateRequest, by *domain.Principal) (record *domain.InventoryRecord, err error) {
	if s.cache == nil || requestID == "" {
		return s.Create(ctx, req, by)
	}
	defer s.observe(domain.ActionCreated, time.Now(), &err)

	rec, entry, err := s.prepareCreate(req, by)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("create:%d:%s", by.ID, requestID)
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	record, err = s.commitCreate(ctx, rec, entry)
	if err != nil {
		// nothing was stored, let the same request id be retried
		if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
			s.logger.Error("failed to release idempotency key",
				zap.String("key", key),
				zap.Error(releaseErr))
		}
		return nil, err
	}
	return record, nil
}

func (s *InventoryService) prepareCreate(req CreateRequest, by *domain.Principal) (domain.InventoryRecord, domain.TransactionRecord, error) {
	var (
		rec   domain.InventoryRecord
		entry domain.TransactionRecord
	)
	if err := requirePrincipal(by); err != nil {
		return rec, entry, err
	}
	label, err := requireText("label_id", req.LabelID, domain.MaxLabelIDLength)
	if err != nil {
		return rec, entry, err
	}
	description, err := requireText("product_description", req.ProductDescription, domain.MaxProductDescriptionLength)
	if err != nil {
		return rec, entry, err
	}

	location := domain.DefaultStorageLocation
	if req.StorageLocation != nil {
		if location, err = validateLocation(*req.StorageLocation); err != nil {
			return rec, entry, err
		}
	}
	quantity := domain.UncountedQuantity
	if req.QuantityOnPallet != nil {
		quantity = *req.QuantityOnPallet
		if err := quantityInRange(quantity); err != nil {
			return rec, entry, err
		}
	}

	now := s.now()
	rec = domain.InventoryRecord{
		RecordID:           s.ids.NextID(),
		LabelID:            label,
		StorageLocation:    location,
		QuantityOnPallet:   quantity,
		ProductDescription: description,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	entry = domain.TransactionRecord{
		ID:                s.ids.NextID(),
		InventoryRecordID: rec.RecordID,
		Action:            domain.ActionCreated,
		Timestamp:         now,
		PerformedBy:       by.ID,
		PerformedByName:   by.Name,
		NewQuantity:       domain.IntPtr(quantity),
		NewLocation:       domain.StringPtr(location),
	}
	rec.LatestTransactionID = entry.ID
	return rec, entry, nil
}

func (s *InventoryService) commitCreate(ctx context.Context, rec domain.InventoryRecord, entry domain.TransactionRecord) (*domain.InventoryRecord, error) {
	if err := s.repo.CreateRecord(ctx, rec, entry); err != nil {
		return nil, s.failure("create inventory record", rec.RecordID, err)
	}
	s.logger.Info("inventory record created",
		zap.Int64("record_id", rec.RecordID),
		zap.String("label_id", rec.LabelID),
		zap.Int64("performed_by", entry.PerformedBy))
	return &rec, nil
}

func (s *InventoryService) UpdateQuantity(ctx context.Context, recordID int64, quantity int, by *domain.Principal) (record *domain.InventoryRecord, err error) {
	defer s.observe(domain.ActionEditQuantity, time.Now(), &err)

	return s.transition(ctx, recordID, domain.ActionEditQuantity, by,
		func(r *domain.InventoryRecord, _ time.Time) (*domain.TransactionRecord, error) {
			if err := validateQuantity(quantity); err != nil {
				return nil, err
			}
			previous := r.QuantityOnPallet
			r.QuantityOnPallet = quantity
			return &domain.TransactionRecord{
				PreviousQuantity: domain.IntPtr(previous),
				NewQuantity:      domain.IntPtr(quantity),
			}, nil
		})
}

// AdjustQuantity adds delta to a counted pallet.
func (s *InventoryService) AdjustQuantity(ctx context.Context, recordID int64, delta int, by *domain.Principal) (record *domain.InventoryRecord, err error) {
	defer s.observe(domain.ActionEditQuantity, time.Now(), &err)

	return s.transition(ctx, recordID, domain.ActionEditQuantity, by,
		func(r *domain.InventoryRecord, _ time.Time) (*domain.TransactionRecord, error) {
			if !r.IsCounted() {
				return nil, &domain.ValidationError{Field: "quantity_on_pallet", Reason: "has not been counted yet"}
			}
			if err := quantityInRange(delta); err != nil {
				return nil, err
			}
			next := r.QuantityOnPallet + delta
			if err := validateQuantity(next); err != nil {
				return nil, err
			}
			previous := r.QuantityOnPallet
			r.QuantityOnPallet = next
			return &domain.TransactionRecord{
				PreviousQuantity: domain.IntPtr(previous),
				NewQuantity:      domain.IntPtr(next),
			}, nil
		})
}

func (s *InventoryService) UpdateLocation(ctx context.Context, recordID int64, location string, by *domain.Principal) (record *domain.InventoryRecord, err error) {
	defer s.observe(domain.ActionMoveLocation, time.Now(), &err)

	return s.transition(ctx, recordID, domain.ActionMoveLocation, by,
		func(r *domain.InventoryRecord, _ time.Time) (*domain.TransactionRecord, error) {
			next, err := validateLocation(location)
			if err != nil {
				return nil, err
			}
			previous := r.StorageLocation
			r.StorageLocation = next
			return &domain.TransactionRecord{
				PreviousLocation: domain.StringPtr(previous),
				NewLocation:      domain.StringPtr(next),
			}, nil
		})
}

// SoftDelete schedules a record for deletion. Only managers may do this and a
// record can be scheduled once.
func (s *InventoryService) SoftDelete(ctx context.Context, recordID int64, by *domain.Principal) (record *domain.InventoryRecord, err error) {
	defer s.observe(domain.ActionDeleted, time.Now(), &err)

	return s.transition(ctx, recordID, domain.ActionDeleted, by,
		func(r *domain.InventoryRecord, now time.Time) (*domain.TransactionRecord, error) {
			if !by.IsManager {
				return nil, &domain.AuthorizationError{PrincipalID: by.ID, Operation: "schedule inventory records for deletion"}
			}
			if r.IsScheduledForDeletion() {
				return nil, &domain.ValidationError{Field: "scheduled_for_deletion", Reason: "is already set"}
			}
			at := now
			r.ScheduledForDeletion = &at
			return &domain.TransactionRecord{}, nil
		})
}

func (s *InventoryService) Get(ctx context.Context, recordID int64) (*domain.InventoryRecord, error) {
	record, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		return nil, s.failure("get inventory record", recordID, err)
	}
	return record, nil
}

func (s *InventoryService) Find(ctx context.Context, criteria domain.Criteria) ([]domain.InventoryRecord, error) {
	records, err := s.repo.FindRecords(ctx, criteria)
	if err != nil {
		return nil, s.failure("find inventory records", 0, err)
	}
	if records == nil {
		records = []domain.InventoryRecord{}
	}
	return records, nil
}

// History returns the record's audit trail, newest entry first.
func (s *InventoryService) History(ctx context.Context, recordID int64) ([]domain.TransactionRecord, error) {
	entries, err := s.repo.History(ctx, recordID)
	if err != nil {
		return nil, s.failure("load transaction history", recordID, err)
	}
	return entries, nil
}

type applyFunc func(r *domain.InventoryRecord, now time.Time) (*domain.TransactionRecord, error)

// transition runs apply against the locked record and stamps the entry it
// returns before the repository commits both.
func (s *InventoryService) transition(ctx context.Context, recordID int64, action domain.Action, by *domain.Principal, apply applyFunc) (*domain.InventoryRecord, error) {
	if err := requirePrincipal(by); err != nil {
		return nil, err
	}

	record, err := s.repo.MutateRecord(ctx, recordID, func(r *domain.InventoryRecord) (*domain.TransactionRecord, error) {
		now := s.now()
		entry, err := apply(r, now)
		if err != nil {
			return nil, err
		}
		entry.ID = s.ids.NextID()
		entry.InventoryRecordID = r.RecordID
		entry.Action = action
		entry.Timestamp = now
		entry.PerformedBy = by.ID
		entry.PerformedByName = by.Name
		if err := entry.Validate(); err != nil {
			return nil, domain.NewPersistenceError("append transaction", err)
		}
		r.LatestTransactionID = entry.ID
		r.UpdatedAt = now
		return entry, nil
	})
	if err != nil {
		return nil, s.failure(action.String(), recordID, err)
	}

	s.logger.Info("inventory transition committed",
		zap.Int64("record_id", record.RecordID),
		zap.Stringer("action", action),
		zap.Int64("transaction_id", record.LatestTransactionID),
		zap.Int64("performed_by", by.ID))
	return record, nil
}

// failure passes typed domain errors through and wraps anything else as a
// PersistenceError.
func (s *InventoryService) failure(op string, recordID int64, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnauthorized):
		return err
	}
	err = domain.NewPersistenceError(op, err)
	s.logger.Error("inventory persistence failure",
		zap.String("op", op),
		zap.Int64("record_id", recordID),
		zap.Error(err))
	return err
}

func (s *InventoryService) observe(action domain.Action, start time.Time, err *error) {
	if s.recorder != nil {
		s.recorder.RecordTransition(action, *err, time.Since(start))
	}
}
