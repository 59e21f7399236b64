package goals

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalvault/backend/internal/allocation"
	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/pkg/storage"
	"github.com/goalvault/backend/pkg/storage/memory"
)

type fixture struct {
	goals        *memory.Store
	institutions *memory.Store
	service      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	goalStore, err := memory.New(memory.Config{PartitionKey: "userId", SortKey: "goalId"})
	require.NoError(t, err)
	institutionStore, err := memory.New(memory.Config{PartitionKey: "userId", SortKey: "institutionId"})
	require.NoError(t, err)

	engine := allocation.NewEngine(institutionStore)

	return &fixture{
		goals:        goalStore,
		institutions: institutionStore,
		service:      NewService(goalStore, institutionStore, engine, zerolog.Nop()),
	}
}

func (f *fixture) putInstitution(t *testing.T, institution *domain.Institution) {
	t.Helper()

	item, err := attributevalue.MarshalMap(institution)
	require.NoError(t, err)
	require.NoError(t, f.institutions.Put(context.Background(), item))
}

func (f *fixture) institution(t *testing.T, userID, institutionID string) *domain.Institution {
	t.Helper()
	return readInstitution(t, f.institutions, userID, institutionID)
}

func readInstitution(t *testing.T, store storage.EntityStore, userID, institutionID string) *domain.Institution {
	t.Helper()

	item, err := store.Get(context.Background(), storage.Key{Partition: userID, Sort: institutionID})
	require.NoError(t, err)

	var institution domain.Institution
	require.NoError(t, attributevalue.UnmarshalMap(item, &institution))
	return &institution
}

func TestCreateGoal(t *testing.T) {
	f := newFixture(t)
	f.putInstitution(t, &domain.Institution{
		UserID: "user-1", InstitutionID: "inst-1", Name: "Checking", AllocatedPercent: 10,
	})
	f.putInstitution(t, &domain.Institution{
		UserID: "user-1", InstitutionID: "inst-2", Name: "Savings", AllocatedPercent: 0,
	})

	goal, err := f.service.Create(context.Background(), "user-1", "House deposit", "20% down payment",
		map[string]int{"inst-1": 40, "inst-2": 100})
	require.NoError(t, err)
	require.NotEmpty(t, goal.GoalID)
	assert.NotZero(t, goal.CreatedAt)

	// Institution budgets moved and carry the goal link.
	first := f.institution(t, "user-1", "inst-1")
	assert.Equal(t, 50, first.AllocatedPercent)
	assert.Contains(t, first.LinkedGoals, goal.GoalID)

	second := f.institution(t, "user-1", "inst-2")
	assert.Equal(t, 100, second.AllocatedPercent)

	// The goal record is persisted and readable.
	stored, err := f.service.Get(context.Background(), "user-1", goal.GoalID)
	require.NoError(t, err)
	assert.Equal(t, "House deposit", stored.Name)
	assert.Equal(t, map[string]int{"inst-1": 40, "inst-2": 100}, stored.LinkedInstitutions)
}

func TestCreateGoalOverAllocatedWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.putInstitution(t, &domain.Institution{
		UserID: "user-1", InstitutionID: "inst-1", Name: "Checking", AllocatedPercent: 60,
	})
	f.institutions.ResetMetrics()

	_, err := f.service.Create(context.Background(), "user-1", "Car", "",
		map[string]int{"inst-1": 50})
	require.ErrorIs(t, err, domain.ErrInsufficientAllocation)
	assert.Contains(t, err.Error(), "Current: 60%")
	assert.Contains(t, err.Error(), "Requested: 50%")
	assert.Contains(t, err.Error(), "Total would be: 110%")

	assert.Equal(t, 60, f.institution(t, "user-1", "inst-1").AllocatedPercent)
	assert.EqualValues(t, 0, f.institutions.OperationCount("put"))
	assert.EqualValues(t, 0, f.institutions.OperationCount("putIf"))
	assert.EqualValues(t, 0, f.goals.OperationCount("put"))
}

func TestCreateGoalPartialValidityWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.putInstitution(t, &domain.Institution{
		UserID: "user-1", InstitutionID: "inst-a", Name: "A", AllocatedPercent: 0,
	})

	_, err := f.service.Create(context.Background(), "user-1", "Trip", "",
		map[string]int{"inst-a": 10, "inst-missing": 10})
	require.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, 0, f.institution(t, "user-1", "inst-a").AllocatedPercent)
	assert.EqualValues(t, 0, f.goals.OperationCount("put"))
}

func TestCreateGoalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, "user-1", "", "", map[string]int{"inst-1": 10})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.service.Create(ctx, "user-1", strings.Repeat("n", 101), "", map[string]int{"inst-1": 10})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.service.Create(ctx, "user-1", "Trip", strings.Repeat("d", 501), map[string]int{"inst-1": 10})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.service.Create(ctx, "user-1", "Trip", "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.service.Create(ctx, "user-1", "Trip", "", map[string]int{"inst-1": 120})
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)
}

func TestSequentialGoalsNeverOversellInstitution(t *testing.T) {
	f := newFixture(t)
	f.putInstitution(t, &domain.Institution{
		UserID: "user-1", InstitutionID: "inst-1", Name: "Checking",
	})
	ctx := context.Background()

	_, err := f.service.Create(ctx, "user-1", "First", "", map[string]int{"inst-1": 60})
	require.NoError(t, err)

	_, err = f.service.Create(ctx, "user-1", "Second", "", map[string]int{"inst-1": 50})
	require.ErrorIs(t, err, domain.ErrInsufficientAllocation)

	_, err = f.service.Create(ctx, "user-1", "Third", "", map[string]int{"inst-1": 40})
	require.NoError(t, err)

	assert.Equal(t, 100, f.institution(t, "user-1", "inst-1").AllocatedPercent)
}

func TestDeleteGoalReleasesAllocations(t *testing.T) {
	f := newFixture(t)
	f.putInstitution(t, &domain.Institution{
		UserID: "user-1", InstitutionID: "inst-1", Name: "Checking", AllocatedPercent: 25,
	})
	ctx := context.Background()

	goal, err := f.service.Create(ctx, "user-1", "Trip", "", map[string]int{"inst-1": 50})
	require.NoError(t, err)
	require.Equal(t, 75, f.institution(t, "user-1", "inst-1").AllocatedPercent)

	require.NoError(t, f.service.Delete(ctx, "user-1", goal.GoalID))

	institution := f.institution(t, "user-1", "inst-1")
	assert.Equal(t, 25, institution.AllocatedPercent)
	assert.NotContains(t, institution.LinkedGoals, goal.GoalID)

	_, err = f.service.Get(ctx, "user-1", goal.GoalID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteGoalAfterAllocationAlreadyReleased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A prior delete released the allocation but failed before removing
	// the goal record. Retrying must succeed against the clamped total.
	f.putInstitution(t, &domain.Institution{
		UserID: "user-1", InstitutionID: "inst-1", Name: "Checking",
		AllocatedPercent: 0, LinkedGoals: []string{"goal-1"},
	})
	item, err := attributevalue.MarshalMap(&domain.Goal{
		UserID: "user-1", GoalID: "goal-1", Name: "Trip",
		LinkedInstitutions: map[string]int{"inst-1": 50}, CreatedAt: 1,
	})
	require.NoError(t, err)
	require.NoError(t, f.goals.Put(ctx, item))

	require.NoError(t, f.service.Delete(ctx, "user-1", "goal-1"))

	institution := f.institution(t, "user-1", "inst-1")
	assert.Equal(t, 0, institution.AllocatedPercent)
	assert.NotContains(t, institution.LinkedGoals, "goal-1")

	_, err = f.service.Get(ctx, "user-1", "goal-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// faultyStore fails selected writes so partial-commit handling can be
// observed. PutIf calls up to but not including failPutIfOn succeed.
type faultyStore struct {
	*memory.Store
	putErr      error
	putIfErr    error
	failPutIfOn int
	putIfCalls  int
}

func (f *faultyStore) Put(ctx context.Context, item storage.Item) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.Put(ctx, item)
}

func (f *faultyStore) PutIf(ctx context.Context, item storage.Item, attribute string, expected interface{}) error {
	f.putIfCalls++
	if f.putIfErr != nil && f.putIfCalls >= f.failPutIfOn {
		return f.putIfErr
	}
	return f.Store.PutIf(ctx, item, attribute, expected)
}

func TestCreateGoalSurfacesGoalRecordPutFailure(t *testing.T) {
	goalStore, err := memory.New(memory.Config{PartitionKey: "userId", SortKey: "goalId"})
	require.NoError(t, err)
	institutionStore, err := memory.New(memory.Config{PartitionKey: "userId", SortKey: "institutionId"})
	require.NoError(t, err)
	ctx := context.Background()

	item, err := attributevalue.MarshalMap(&domain.Institution{
		UserID: "user-1", InstitutionID: "inst-1", Name: "Checking",
	})
	require.NoError(t, err)
	require.NoError(t, institutionStore.Put(ctx, item))

	faulty := &faultyStore{Store: goalStore, putErr: errors.New("table unavailable")}
	engine := allocation.NewEngine(institutionStore)
	service := NewService(faulty, institutionStore, engine, zerolog.Nop())

	_, err = service.Create(ctx, "user-1", "Trip", "", map[string]int{"inst-1": 50})
	require.ErrorIs(t, err, domain.ErrStorage)

	// The institution update stays applied; reconciliation is manual.
	institution := readInstitution(t, institutionStore, "user-1", "inst-1")
	assert.Equal(t, 50, institution.AllocatedPercent)
	assert.Len(t, institution.LinkedGoals, 1)
}

func TestCreateGoalSurfacesInstitutionPutFailure(t *testing.T) {
	goalStore, err := memory.New(memory.Config{PartitionKey: "userId", SortKey: "goalId"})
	require.NoError(t, err)
	institutionStore, err := memory.New(memory.Config{PartitionKey: "userId", SortKey: "institutionId"})
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"inst-a", "inst-b"} {
		item, err := attributevalue.MarshalMap(&domain.Institution{
			UserID: "user-1", InstitutionID: id, Name: id,
		})
		require.NoError(t, err)
		require.NoError(t, institutionStore.Put(ctx, item))
	}

	faulty := &faultyStore{Store: institutionStore, putIfErr: errors.New("table unavailable"), failPutIfOn: 2}
	engine := allocation.NewEngine(faulty)
	service := NewService(goalStore, faulty, engine, zerolog.Nop())

	_, err = service.Create(ctx, "user-1", "Trip", "", map[string]int{"inst-a": 30, "inst-b": 40})
	require.ErrorIs(t, err, domain.ErrStorage)

	// The fault is surfaced on the second write without a retry, the
	// first institution stays committed, and no goal record is written.
	assert.Equal(t, 2, faulty.putIfCalls)
	assert.Equal(t, 30, readInstitution(t, institutionStore, "user-1", "inst-a").AllocatedPercent)
	assert.Equal(t, 0, readInstitution(t, institutionStore, "user-1", "inst-b").AllocatedPercent)
	assert.EqualValues(t, 0, goalStore.OperationCount("put"))
}

func TestGetGoalScopedByUser(t *testing.T) {
	f := newFixture(t)
	f.putInstitution(t, &domain.Institution{
		UserID: "user-1", InstitutionID: "inst-1", Name: "Checking",
	})

	goal, err := f.service.Create(context.Background(), "user-1", "Trip", "", map[string]int{"inst-1": 10})
	require.NoError(t, err)

	_, err = f.service.Get(context.Background(), "user-2", goal.GoalID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListGoalsPaginates(t *testing.T) {
	f := newFixture(t)
	f.putInstitution(t, &domain.Institution{
		UserID: "user-1", InstitutionID: "inst-1", Name: "Checking",
	})
	ctx := context.Background()

	for _, name := range []string{"One", "Two", "Three"} {
		_, err := f.service.Create(ctx, "user-1", name, "", map[string]int{"inst-1": 5})
		require.NoError(t, err)
	}

	var collected []*domain.Goal
	token := ""
	pages := 0
	for {
		page, next, err := f.service.List(ctx, "user-1", 2, token)
		require.NoError(t, err)
		collected = append(collected, page...)
		pages++

		if next == "" {
			break
		}
		token = next
	}

	assert.Len(t, collected, 3)
	assert.Equal(t, 2, pages)

	_, _, err := f.service.List(ctx, "user-1", 2, "!!not-a-token!!")
	assert.Error(t, err)
}

// conflictingStore simulates a concurrent allocation update landing between
// the engine's read and the service's conditional write.
type conflictingStore struct {
	*memory.Store
	tampered bool
	tamper   func()
}

func (c *conflictingStore) PutIf(ctx context.Context, item storage.Item, attribute string, expected interface{}) error {
	if !c.tampered {
		c.tampered = true
		c.tamper()
	}
	return c.Store.PutIf(ctx, item, attribute, expected)
}

func TestCreateGoalRetriesLostRace(t *testing.T) {
	goalStore, err := memory.New(memory.Config{PartitionKey: "userId", SortKey: "goalId"})
	require.NoError(t, err)
	institutionStore, err := memory.New(memory.Config{PartitionKey: "userId", SortKey: "institutionId"})
	require.NoError(t, err)
	ctx := context.Background()

	put := func(institution *domain.Institution) {
		item, err := attributevalue.MarshalMap(institution)
		require.NoError(t, err)
		require.NoError(t, institutionStore.Put(ctx, item))
	}
	put(&domain.Institution{UserID: "user-1", InstitutionID: "inst-1", Name: "Checking", AllocatedPercent: 20})

	racing := &conflictingStore{
		Store: institutionStore,
		tamper: func() {
			// Another request bumps the allocation to 40 first.
			put(&domain.Institution{UserID: "user-1", InstitutionID: "inst-1", Name: "Checking", AllocatedPercent: 40})
		},
	}

	engine := allocation.NewEngine(racing)
	service := NewService(goalStore, racing, engine, zerolog.Nop())

	goal, err := service.Create(ctx, "user-1", "Trip", "", map[string]int{"inst-1": 30})
	require.NoError(t, err)

	item, err := institutionStore.Get(ctx, storage.Key{Partition: "user-1", Sort: "inst-1"})
	require.NoError(t, err)

	var institution domain.Institution
	require.NoError(t, attributevalue.UnmarshalMap(item, &institution))
	assert.Equal(t, 70, institution.AllocatedPercent)
	assert.Contains(t, institution.LinkedGoals, goal.GoalID)
}
