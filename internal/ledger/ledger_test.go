package ledger

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/pkg/storage/memory"
)

func newLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()

	store, err := memory.New(memory.Config{PartitionKey: "institutionId", SortKey: "createdAt"})
	require.NoError(t, err)
	return New(store, zerolog.Nop()), store
}

func transaction(institutionID string, createdAt int64) *domain.Transaction {
	return &domain.Transaction{
		InstitutionID: institutionID,
		CreatedAt:     createdAt,
		TransactionID: "tx-" + institutionID,
		UserID:        "user-1",
		Type:          domain.Deposit,
		Amount:        125.50,
	}
}

func TestAppendAndListDescending(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	// Appended out of order on purpose.
	for _, createdAt := range []int64{100, 200, 150} {
		require.NoError(t, ledger.Append(ctx, transaction("inst-1", createdAt)))
	}

	listed, err := ledger.ListByInstitution(ctx, "inst-1")
	require.NoError(t, err)
	require.Len(t, listed, 3)

	timestamps := []int64{listed[0].CreatedAt, listed[1].CreatedAt, listed[2].CreatedAt}
	assert.Equal(t, []int64{200, 150, 100}, timestamps)
}

func TestListIsRestartable(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	for createdAt := int64(1); createdAt <= 10; createdAt++ {
		require.NoError(t, ledger.Append(ctx, transaction("inst-1", createdAt)))
	}

	first, err := ledger.ListByInstitution(ctx, "inst-1")
	require.NoError(t, err)
	second, err := ledger.ListByInstitution(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAppendValidation(t *testing.T) {
	ledger, store := newLedger(t)
	ctx := context.Background()

	cases := map[string]struct {
		mutate  func(*domain.Transaction)
		missing string
	}{
		"institution id": {func(tx *domain.Transaction) { tx.InstitutionID = "" }, "institutionId"},
		"user id":        {func(tx *domain.Transaction) { tx.UserID = "" }, "userId"},
		"transaction id": {func(tx *domain.Transaction) { tx.TransactionID = "" }, "transactionId"},
		"type":           {func(tx *domain.Transaction) { tx.Type = "" }, "type"},
		"created at":     {func(tx *domain.Transaction) { tx.CreatedAt = 0 }, "createdAt"},
	}

	for name, tc := range cases {
		tx := transaction("inst-1", 100)
		tc.mutate(tx)

		err := ledger.Append(ctx, tx)
		require.ErrorIs(t, err, domain.ErrInvalidInput, name)
		assert.Contains(t, err.Error(), tc.missing, name)
	}

	// Nothing was written for any of the rejected transactions.
	assert.EqualValues(t, 0, store.OperationCount("put"))
}

func TestAppendRejectsNonFiniteAmounts(t *testing.T) {
	ledger, store := newLedger(t)
	ctx := context.Background()

	for _, amount := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, -3, 2e9} {
		tx := transaction("inst-1", 100)
		tx.Amount = amount
		assert.ErrorIs(t, ledger.Append(ctx, tx), domain.ErrInvalidInput)
	}

	assert.EqualValues(t, 0, store.OperationCount("put"))
}

func TestAppendRejectsUnknownType(t *testing.T) {
	ledger, _ := newLedger(t)

	tx := transaction("inst-1", 100)
	tx.Type = "TRANSFER"
	err := ledger.Append(context.Background(), tx)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "TRANSFER")
}

func TestDeleteOne(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Append(ctx, transaction("inst-1", 100)))
	require.NoError(t, ledger.DeleteOne(ctx, "inst-1", 100))

	listed, err := ledger.ListByInstitution(ctx, "inst-1")
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Absent keys are a no-op, not an error.
	require.NoError(t, ledger.DeleteOne(ctx, "inst-1", 100))
}

func TestDeleteAllBatches(t *testing.T) {
	ledger, store := newLedger(t)
	ctx := context.Background()

	for createdAt := int64(1); createdAt <= 57; createdAt++ {
		require.NoError(t, ledger.Append(ctx, transaction("inst-1", createdAt)))
	}
	store.ResetMetrics()

	require.NoError(t, ledger.DeleteAllForInstitution(ctx, "inst-1"))

	// 57 keys at a 25-key ceiling: 25 + 25 + 7.
	assert.EqualValues(t, 3, store.OperationCount("batchDelete"))

	listed, err := ledger.ListByInstitution(ctx, "inst-1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestDeleteAllEmptyPartition(t *testing.T) {
	ledger, store := newLedger(t)

	require.NoError(t, ledger.DeleteAllForInstitution(context.Background(), "inst-1"))
	assert.EqualValues(t, 0, store.OperationCount("batchDelete"))
}
