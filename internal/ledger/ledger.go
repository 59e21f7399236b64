// Package ledger records transactions against institutions and maintains
// their reverse-chronological ordering.
package ledger

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/rs/zerolog"

	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/pkg/storage"
)

// Ledger provides append, listing, and deletion over the transactions
// table, keyed by (institutionId, createdAt).
type Ledger struct {
	store storage.EntityStore
	log   zerolog.Logger
}

// New creates a Ledger over the transactions table.
func New(store storage.EntityStore, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// Append validates and writes one transaction. A put on an existing
// (institutionId, createdAt) key overwrites it, so two transactions within
// the same second on one institution collapse into the later one; the
// debug log carries the transaction id to make that diagnosable.
func (l *Ledger) Append(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return fmt.Errorf("%w: marshalling transaction %s: %w", domain.ErrStorage, tx.TransactionID, err)
	}

	if err := l.store.Put(ctx, item); err != nil {
		return fmt.Errorf("%w: writing transaction %s: %w", domain.ErrStorage, tx.TransactionID, err)
	}

	l.log.Debug().
		Str("institutionId", tx.InstitutionID).
		Str("transactionId", tx.TransactionID).
		Int64("createdAt", tx.CreatedAt).
		Msg("transaction appended")

	return nil
}

// ListByInstitution returns every transaction for the institution, newest
// first. It walks the whole partition page by page, so it is read-only
// and safe to restart.
func (l *Ledger) ListByInstitution(ctx context.Context, institutionID string) ([]*domain.Transaction, error) {
	if institutionID == "" {
		return nil, fmt.Errorf("%w: missing field institutionId", domain.ErrInvalidInput)
	}

	var transactions []*domain.Transaction
	var startKey storage.Item

	for {
		result, err := l.store.Query(ctx, institutionID, &storage.QueryOptions{
			ScanForward:       false,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: listing transactions for institution %s: %w", domain.ErrStorage, institutionID, err)
		}

		for _, item := range result.Items {
			var tx domain.Transaction
			if err := attributevalue.UnmarshalMap(item, &tx); err != nil {
				return nil, fmt.Errorf("%w: unmarshalling transaction: %w", domain.ErrStorage, err)
			}
			transactions = append(transactions, &tx)
		}

		if len(result.LastEvaluatedKey) == 0 {
			return transactions, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// DeleteOne removes the transaction at (institutionID, createdAt). Absent
// keys are a no-op.
func (l *Ledger) DeleteOne(ctx context.Context, institutionID string, createdAt int64) error {
	if institutionID == "" {
		return fmt.Errorf("%w: missing field institutionId", domain.ErrInvalidInput)
	}

	err := l.store.Delete(ctx, storage.Key{Partition: institutionID, Sort: createdAt})
	if err != nil {
		return fmt.Errorf("%w: deleting transaction: %w", domain.ErrStorage, err)
	}

	return nil
}

// DeleteAllForInstitution removes every transaction for the institution in
// sequential batches of at most storage.MaxBatchSize keys. Batches already
// committed stay committed if a later one fails.
func (l *Ledger) DeleteAllForInstitution(ctx context.Context, institutionID string) error {
	transactions, err := l.ListByInstitution(ctx, institutionID)
	if err != nil {
		return err
	}
	if len(transactions) == 0 {
		return nil
	}

	keys := make([]storage.Key, 0, len(transactions))
	for _, tx := range transactions {
		keys = append(keys, storage.Key{Partition: tx.InstitutionID, Sort: tx.CreatedAt})
	}

	for start := 0; start < len(keys); start += storage.MaxBatchSize {
		end := start + storage.MaxBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		if err := l.store.BatchDelete(ctx, keys[start:end]); err != nil {
			return fmt.Errorf("%w: batch-deleting transactions for institution %s (%d already deleted): %w",
				domain.ErrStorage, institutionID, start, err)
		}
	}

	l.log.Info().
		Str("institutionId", institutionID).
		Int("transactions", len(keys)).
		Msg("transaction partition purged")

	return nil
}
