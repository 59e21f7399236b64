// Package allocation keeps each institution's percentage budget consistent
// across the goals that draw on it. The engine only reads and stages;
// persisting staged institutions is the caller's job.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/pkg/storage"
)

// Engine validates and stages allocation changes against the institutions
// table.
type Engine struct {
	institutions storage.EntityStore
}

// Staged pairs an institution whose allocation total has been adjusted
// with the total that was stored when it was read. A conditional write
// committing the adjustment must guard on the prior total; deriving it
// from the staged value is wrong when Release clamped at zero.
type Staged struct {
	Institution  *domain.Institution
	PriorPercent int
}

// NewEngine creates an engine reading from the given institutions store.
func NewEngine(institutions storage.EntityStore) *Engine {
	return &Engine{institutions: institutions}
}

// Reserve validates the requested per-institution percentages for userID
// and returns the institutions with their allocation totals already
// increased. Every institution is validated before any of them is staged,
// so a failure anywhere leaves nothing half-applied. Nothing is written.
func (e *Engine) Reserve(ctx context.Context, userID string, allocations map[string]int) (map[string]Staged, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing field userId", domain.ErrInvalidInput)
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("%w: at least one institution allocation is required", domain.ErrInvalidInput)
	}

	staged := make(map[string]Staged, len(allocations))

	for _, institutionID := range sortedIDs(allocations) {
		requested := allocations[institutionID]
		if requested < 0 || requested > domain.MaxAllocatedPercent {
			return nil, fmt.Errorf("%w: percentage %d for institution %s must be between 0 and 100", domain.ErrInvalidAllocation, requested, institutionID)
		}

		institution, err := e.fetch(ctx, userID, institutionID)
		if err != nil {
			return nil, err
		}

		current := institution.AllocatedPercent
		newTotal := current + requested
		if newTotal > domain.MaxAllocatedPercent {
			return nil, fmt.Errorf(
				"%w: institution %q cannot fit this allocation. Current: %d%%, Requested: %d%%, Total would be: %d%%",
				domain.ErrInsufficientAllocation, institution.Name, current, requested, newTotal,
			)
		}

		institution.AllocatedPercent = newTotal
		staged[institutionID] = Staged{Institution: institution, PriorPercent: current}
	}

	return staged, nil
}

// Release stages the reverse of Reserve: each institution's total is
// decreased by the given percentage, clamped at zero. Used when a goal is
// deleted. Nothing is written.
func (e *Engine) Release(ctx context.Context, userID string, allocations map[string]int) (map[string]Staged, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing field userId", domain.ErrInvalidInput)
	}

	staged := make(map[string]Staged, len(allocations))

	for _, institutionID := range sortedIDs(allocations) {
		institution, err := e.fetch(ctx, userID, institutionID)
		if err != nil {
			return nil, err
		}

		current := institution.AllocatedPercent
		newTotal := current - allocations[institutionID]
		if newTotal < 0 {
			newTotal = 0
		}

		institution.AllocatedPercent = newTotal
		staged[institutionID] = Staged{Institution: institution, PriorPercent: current}
	}

	return staged, nil
}

// fetch loads one institution by its composite key. Keying by both ids
// doubles as the ownership check: another user's institution is simply
// not found.
func (e *Engine) fetch(ctx context.Context, userID, institutionID string) (*domain.Institution, error) {
	item, err := e.institutions.Get(ctx, storage.Key{Partition: userID, Sort: institutionID})
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

// sortedIDs fixes the validation order so error reporting is deterministic.
func sortedIDs(allocations map[string]int) []string {
	ids := make([]string, 0, len(allocations))
	for id := range allocations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
