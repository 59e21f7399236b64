package storage

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MaxBatchSize is the hard ceiling on keys per BatchDelete call, matching
// the DynamoDB BatchWriteItem limit.
const MaxBatchSize = 25

var (
	// ErrItemNotFound indicates that no item exists at the requested key.
	ErrItemNotFound = errors.New("item not found")
	// ErrConditionFailed indicates that a conditional put found the guarded
	// attribute holding a different value than expected.
	ErrConditionFailed = errors.New("condition failed")
	// ErrBatchTooLarge indicates a BatchDelete call exceeding MaxBatchSize keys.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
)

// Item is a raw store record: attribute name to attribute value.
type Item = map[string]types.AttributeValue

// Key identifies a single item. Sort is nil for tables without a sort key.
// Values may be strings or numbers; they are marshalled to the store's
// native scalar types.
type Key struct {
	Partition interface{}
	Sort      interface{}
}

// QueryOptions controls a partition query.
type QueryOptions struct {
	// ScanForward orders results ascending by sort key when true,
	// descending when false.
	ScanForward bool

	// Limit caps the number of items evaluated for this page. Zero means
	// no explicit limit.
	Limit int32

	// ExclusiveStartKey resumes a prior query from its LastEvaluatedKey.
	ExclusiveStartKey Item

	// ConsistentRead requests a strongly consistent read where supported.
	ConsistentRead bool
}

// QueryResult holds one page of a partition query. LastEvaluatedKey is
// non-empty when further pages remain.
type QueryResult struct {
	Items            []Item
	LastEvaluatedKey Item
}

// EntityStore is the keyed storage collaborator all domain services are
// written against. Implementations must treat Put as an idempotent
// overwrite by full key and Delete as a no-op on absent keys.
type EntityStore interface {
	// Get fetches the item at key, or ErrItemNotFound.
	Get(ctx context.Context, key Key) (Item, error)

	// Put overwrites the item identified by the key attributes it carries.
	Put(ctx context.Context, item Item) error

	// PutIf overwrites the item only while attribute still equals expected,
	// failing with ErrConditionFailed otherwise.
	PutIf(ctx context.Context, item Item, attribute string, expected interface{}) error

	// Delete removes the item at key; absent keys are not an error.
	Delete(ctx context.Context, key Key) error

	// Query returns one page of the partition's items in sort-key order.
	Query(ctx context.Context, partition interface{}, opts *QueryOptions) (*QueryResult, error)

	// BatchDelete removes up to MaxBatchSize items in a single batch call.
	BatchDelete(ctx context.Context, keys []Key) error

	// GetMetrics returns a snapshot of the backend's operation counters.
	GetMetrics() map[string]interface{}
}
