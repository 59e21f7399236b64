// Package goals coordinates the lifecycle of a savings goal: reserving
// allocation budget on its institutions, committing those updates, and
// persisting the goal record itself.
package goals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goalvault/backend/internal/allocation"
	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/pkg/pagination"
	"github.com/goalvault/backend/pkg/storage"
)

// maxCommitAttempts bounds the read-validate-write retry loop when a
// conditional institution update loses a race.
const maxCommitAttempts = 3

// Service orchestrates goal creation and deletion as one logical (but not
// atomic) unit of work. Institution updates and the goal record are
// independent writes; a partial commit is logged for reconciliation, never
// rolled back automatically.
type Service struct {
	goals        storage.EntityStore
	institutions storage.EntityStore
	engine       *allocation.Engine
	log          zerolog.Logger
	now          func() time.Time
}

// NewService creates a goal service over the goals and institutions tables.
func NewService(goals, institutions storage.EntityStore, engine *allocation.Engine, log zerolog.Logger) *Service {
	return &Service{
		goals:        goals,
		institutions: institutions,
		engine:       engine,
		log:          log,
		now:          time.Now,
	}
}

// Create validates the request, reserves the allocation budget, commits
// each institution update with a conditional write, and persists the new
// goal. Any validation or reservation failure aborts before a single
// write is issued.
func (s *Service) Create(ctx context.Context, userID, name, description string, allocations map[string]int) (*domain.Goal, error) {
	goal := &domain.Goal{
		UserID:             userID,
		GoalID:             uuid.NewString(),
		Name:               name,
		Description:        description,
		LinkedInstitutions: allocations,
		CreatedAt:          s.now().Unix(),
	}
	if err := goal.Validate(); err != nil {
		return nil, err
	}

	staged, err := s.engine.Reserve(ctx, userID, allocations)
	if err != nil {
		return nil, err
	}

	committed := make([]string, 0, len(staged))
	for _, institutionID := range sortedIDs(staged) {
		st := staged[institutionID]
		st.Institution.LinkGoal(goal.GoalID)

		err := s.commitInstitution(ctx, userID, st, allocations[institutionID], func(i *domain.Institution) {
			i.LinkGoal(goal.GoalID)
		})
		if err != nil {
			s.logPartialCommit(goal.GoalID, committed, err)
			return nil, err
		}
		committed = append(committed, institutionID)
	}

	item, err := attributevalue.MarshalMap(goal)
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling goal: %w", domain.ErrStorage, err)
	}
	if err := s.goals.Put(ctx, item); err != nil {
		err = fmt.Errorf("%w: persisting goal: %w", domain.ErrStorage, err)
		s.logPartialCommit(goal.GoalID, committed, err)
		return nil, err
	}

	s.log.Info().
		Str("userId", userID).
		Str("goalId", goal.GoalID).
		Int("institutions", len(allocations)).
		Msg("goal created")

	return goal, nil
}

// Get fetches a single goal by (userID, goalID).
func (s *Service) Get(ctx context.Context, userID, goalID string) (*domain.Goal, error) {
	if userID == "" || goalID == "" {
		return nil, fmt.Errorf("%w: userId and goalId are required", domain.ErrInvalidInput)
	}

	item, err := s.goals.Get(ctx, storage.Key{Partition: userID, Sort: goalID})
	if err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			return nil, fmt.Errorf("%w: goal %s", domain.ErrNotFound, goalID)
		}
		return nil, fmt.Errorf("%w: fetching goal %s: %w", domain.ErrStorage, goalID, err)
	}

	var goal domain.Goal
	if err := attributevalue.UnmarshalMap(item, &goal); err != nil {
		return nil, fmt.Errorf("%w: unmarshalling goal %s: %w", domain.ErrStorage, goalID, err)
	}

	return &goal, nil
}

// List returns one page of the user's goals plus a continuation token,
// empty when no pages remain.
func (s *Service) List(ctx context.Context, userID string, limit int32, token string) ([]*domain.Goal, string, error) {
	if userID == "" {
		return nil, "", fmt.Errorf("%w: missing field userId", domain.ErrInvalidInput)
	}

	startKey, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, "", err
	}

	result, err := s.goals.Query(ctx, userID, &storage.QueryOptions{
		ScanForward:       true,
		Limit:             limit,
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: listing goals: %w", domain.ErrStorage, err)
	}

	goals := make([]*domain.Goal, 0, len(result.Items))
	for _, item := range result.Items {
		var goal domain.Goal
		if err := attributevalue.UnmarshalMap(item, &goal); err != nil {
			return nil, "", fmt.Errorf("%w: unmarshalling goal: %w", domain.ErrStorage, err)
		}
		goals = append(goals, &goal)
	}

	next, err := pagination.EncodeToken(result.LastEvaluatedKey)
	if err != nil {
		return nil, "", fmt.Errorf("%w: encoding continuation token: %w", domain.ErrStorage, err)
	}

	return goals, next, nil
}

// Delete releases the goal's allocations back to its institutions, then
// removes the goal record.
func (s *Service) Delete(ctx context.Context, userID, goalID string) error {
	goal, err := s.Get(ctx, userID, goalID)
	if err != nil {
		return err
	}

	staged, err := s.engine.Release(ctx, userID, goal.LinkedInstitutions)
	if err != nil {
		return err
	}

	released := make([]string, 0, len(staged))
	for _, institutionID := range sortedIDs(staged) {
		st := staged[institutionID]
		st.Institution.UnlinkGoal(goalID)

		err := s.commitInstitution(ctx, userID, st, -goal.LinkedInstitutions[institutionID], func(i *domain.Institution) {
			i.UnlinkGoal(goalID)
		})
		if err != nil {
			s.logPartialCommit(goalID, released, err)
			return err
		}
		released = append(released, institutionID)
	}

	if err := s.goals.Delete(ctx, storage.Key{Partition: userID, Sort: goalID}); err != nil {
		err = fmt.Errorf("%w: deleting goal %s: %w", domain.ErrStorage, goalID, err)
		s.logPartialCommit(goalID, released, err)
		return err
	}

	s.log.Info().Str("userId", userID).Str("goalId", goalID).Msg("goal deleted")
	return nil
}

// commitInstitution persists one staged institution with a conditional
// write guarding on the allocation total read during staging. On a lost
// race it re-reads, re-applies the delta, and tries again, up to
// maxCommitAttempts.
func (s *Service) commitInstitution(ctx context.Context, userID string, st allocation.Staged, delta int, reapply func(*domain.Institution)) error {
	institution := st.Institution
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		item, err := attributevalue.MarshalMap(institution)
		if err != nil {
			return fmt.Errorf("%w: marshalling institution %s: %w", domain.ErrStorage, institution.InstitutionID, err)
		}

		err = s.institutions.PutIf(ctx, item, "allocatedPercent", st.PriorPercent)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConditionFailed) {
			return fmt.Errorf("%w: updating institution %s: %w", domain.ErrStorage, institution.InstitutionID, err)
		}

		// Lost the race: restage from current state and re-validate.
		var staged map[string]allocation.Staged
		var stageErr error
		if delta >= 0 {
			staged, stageErr = s.engine.Reserve(ctx, userID, map[string]int{institution.InstitutionID: delta})
		} else {
			staged, stageErr = s.engine.Release(ctx, userID, map[string]int{institution.InstitutionID: -delta})
		}
		if stageErr != nil {
			return stageErr
		}

		st = staged[institution.InstitutionID]
		institution = st.Institution
		reapply(institution)
	}

	return fmt.Errorf("%w: institution %s kept changing concurrently", domain.ErrConflict, institution.InstitutionID)
}

func (s *Service) logPartialCommit(goalID string, committed []string, err error) {
	s.log.Warn().
		Str("goalId", goalID).
		Strs("committedInstitutions", committed).
		Err(err).
		Msg("aborting after partial allocation commit; institutions listed need reconciliation")
}

func sortedIDs(staged map[string]allocation.Staged) []string {
	ids := make([]string, 0, len(staged))
	for id := range staged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
