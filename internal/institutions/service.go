// Package institutions provides CRUD and keyset-paginated listing over a
// user's financial institutions.
package institutions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/pkg/pagination"
	"github.com/goalvault/backend/pkg/storage"
)

// TransactionPurger removes an institution's whole transaction partition.
// Satisfied by ledger.Ledger.
type TransactionPurger interface {
	DeleteAllForInstitution(ctx context.Context, institutionID string) error
}

// Service manages institution records, keyed by (userId, institutionId).
type Service struct {
	store  storage.EntityStore
	purger TransactionPurger
	log    zerolog.Logger
	now    func() time.Time
}

// NewService creates an institution service. purger may be nil when the
// caller never deletes institutions (e.g. read-only tooling).
func NewService(store storage.EntityStore, purger TransactionPurger, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		purger: purger,
		log:    log,
		now:    time.Now,
	}
}

// Create validates and persists a new institution with a fresh id and a
// zero allocation budget.
func (s *Service) Create(ctx context.Context, userID, name string, startingBalance float64) (*domain.Institution, error) {
	institution := &domain.Institution{
		UserID:           userID,
		InstitutionID:    uuid.NewString(),
		Name:             name,
		StartingBalance:  startingBalance,
		CreatedAt:        s.now().Unix(),
		AllocatedPercent: 0,
	}
	if err := institution.Validate(); err != nil {
		return nil, err
	}

	item, err := attributevalue.MarshalMap(institution)
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling institution: %w", domain.ErrStorage, err)
	}
	if err := s.store.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("%w: persisting institution: %w", domain.ErrStorage, err)
	}

	s.log.Info().
		Str("userId", userID).
		Str("institutionId", institution.InstitutionID).
		Msg("institution created")

	return institution, nil
}

// Get fetches a single institution by (userID, institutionID).
func (s *Service) Get(ctx context.Context, userID, institutionID string) (*domain.Institution, error) {
	if userID == "" || institutionID == "" {
		return nil, fmt.Errorf("%w: userId and institutionId are required", domain.ErrInvalidInput)
	}

	item, err := s.store.Get(ctx, storage.Key{Partition: userID, Sort: institutionID})
	if err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			return nil, fmt.Errorf("%w: institution %s", domain.ErrNotFound, institutionID)
		}
		return nil, fmt.Errorf("%w: fetching institution %s: %w", domain.ErrStorage, institutionID, err)
	}

	var institution domain.Institution
	if err := attributevalue.UnmarshalMap(item, &institution); err != nil {
		return nil, fmt.Errorf("%w: unmarshalling institution %s: %w", domain.ErrStorage, institutionID, err)
	}

	return &institution, nil
}

// List returns one page of the user's institutions plus a continuation
// token for the next page, empty when no pages remain.
func (s *Service) List(ctx context.Context, userID string, limit int32, token string) ([]*domain.Institution, string, error) {
	if userID == "" {
		return nil, "", fmt.Errorf("%w: missing field userId", domain.ErrInvalidInput)
	}

	startKey, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, "", err
	}

	result, err := s.store.Query(ctx, userID, &storage.QueryOptions{
		ScanForward:       true,
		Limit:             limit,
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: listing institutions: %w", domain.ErrStorage, err)
	}

	institutions := make([]*domain.Institution, 0, len(result.Items))
	for _, item := range result.Items {
		var institution domain.Institution
		if err := attributevalue.UnmarshalMap(item, &institution); err != nil {
			return nil, "", fmt.Errorf("%w: unmarshalling institution: %w", domain.ErrStorage, err)
		}
		institutions = append(institutions, &institution)
	}

	next, err := pagination.EncodeToken(result.LastEvaluatedKey)
	if err != nil {
		return nil, "", fmt.Errorf("%w: encoding continuation token: %w", domain.ErrStorage, err)
	}

	return institutions, next, nil
}

// Delete removes an institution after purging its transaction partition.
// The purge and the record delete are independent operations; if the
// record delete fails the purge stays applied.
func (s *Service) Delete(ctx context.Context, userID, institutionID string) error {
	institution, err := s.Get(ctx, userID, institutionID)
	if err != nil {
		return err
	}
	if len(institution.LinkedGoals) > 0 {
		return fmt.Errorf("%w: institution %s still funds %d goal(s)", domain.ErrInvalidInput, institutionID, len(institution.LinkedGoals))
	}

	if s.purger != nil {
		if err := s.purger.DeleteAllForInstitution(ctx, institutionID); err != nil {
			return err
		}
	}

	if err := s.store.Delete(ctx, storage.Key{Partition: userID, Sort: institutionID}); err != nil {
		return fmt.Errorf("%w: deleting institution %s: %w", domain.ErrStorage, institutionID, err)
	}

	s.log.Info().
		Str("userId", userID).
		Str("institutionId", institutionID).
		Msg("institution deleted")

	return nil
}
