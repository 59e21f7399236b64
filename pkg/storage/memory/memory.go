package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/goalvault/backend/internal/metrics"
	"github.com/goalvault/backend/pkg/storage"
)

// Config holds the configuration for an in-memory store.
type Config struct {
	PartitionKey string
	SortKey      string
}

// Store is an in-process EntityStore with the same key and pagination
// semantics as the DynamoDB backend. It backs unit tests and local runs.
type Store struct {
	mu         sync.RWMutex
	pkName     string
	skName     string
	partitions map[string][]storage.Item
	metrics    *metrics.Collector
}

// New creates an empty in-memory store.
func New(cfg Config) (*Store, error) {
	if cfg.PartitionKey == "" {
		return nil, errors.New("partition key name is required")
	}

	return &Store{
		pkName:     cfg.PartitionKey,
		skName:     cfg.SortKey,
		partitions: make(map[string][]storage.Item),
		metrics:    metrics.NewCollector(),
	}, nil
}

// Builder adapts New to the storage.Factory signature. Recognized config
// keys: partitionKey, sortKey.
func Builder(config map[string]interface{}) (storage.EntityStore, error) {
	cfg := Config{}

	if partitionKey, ok := config["partitionKey"].(string); ok {
		cfg.PartitionKey = partitionKey
	}
	if sortKey, ok := config["sortKey"].(string); ok {
		cfg.SortKey = sortKey
	}

	return New(cfg)
}

// Get implements the EntityStore interface.
func (s *Store) Get(ctx context.Context, key storage.Key) (storage.Item, error) {
	keyAttrs, err := s.keyAttributes(key)
	if err != nil {
		return nil, err
	}

	var found storage.Item
	err = s.metrics.Measure("get", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		item, ok := s.lookup(keyAttrs)
		if !ok {
			return storage.ErrItemNotFound
		}
		found = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// Put implements the EntityStore interface.
func (s *Store) Put(ctx context.Context, item storage.Item) error {
	return s.metrics.Measure("put", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		return s.store(item)
	})
}

// PutIf implements the EntityStore interface.
func (s *Store) PutIf(ctx context.Context, item storage.Item, attribute string, expected interface{}) error {
	expectedAttr, err := attributevalue.Marshal(expected)
	if err != nil {
		return fmt.Errorf("failed to marshal expected value: %w", err)
	}

	return s.metrics.Measure("putIf", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		current, ok := s.lookup(item)
		if !ok {
			return storage.ErrConditionFailed
		}
		if !equalAttr(current[attribute], expectedAttr) {
			return storage.ErrConditionFailed
		}

		return s.store(item)
	})
}

// Delete implements the EntityStore interface.
func (s *Store) Delete(ctx context.Context, key storage.Key) error {
	keyAttrs, err := s.keyAttributes(key)
	if err != nil {
		return err
	}

	return s.metrics.Measure("delete", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.remove(keyAttrs)
		return nil
	})
}

// Query implements the EntityStore interface.
func (s *Store) Query(ctx context.Context, partition interface{}, opts *storage.QueryOptions) (*storage.QueryResult, error) {
	if opts == nil {
		opts = &storage.QueryOptions{ScanForward: true}
	}

	partitionAttr, err := attributevalue.Marshal(partition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal partition value: %w", err)
	}

	result := &storage.QueryResult{}
	err = s.metrics.Measure("query", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		items := make([]storage.Item, len(s.partitions[attrKey(partitionAttr)]))
		copy(items, s.partitions[attrKey(partitionAttr)])

		if s.skName != "" {
			sort.SliceStable(items, func(i, j int) bool {
				less := compareAttr(items[i][s.skName], items[j][s.skName]) < 0
				if opts.ScanForward {
					return less
				}
				return !less
			})
		}

		// Resume strictly after the exclusive start key in scan order.
		if startSort, ok := opts.ExclusiveStartKey[s.skName]; ok && s.skName != "" {
			pos := 0
			for pos < len(items) {
				cmp := compareAttr(items[pos][s.skName], startSort)
				passed := cmp > 0
				if !opts.ScanForward {
					passed = cmp < 0
				}
				if passed {
					break
				}
				pos++
			}
			items = items[pos:]
		}

		limit := len(items)
		if opts.Limit > 0 && int(opts.Limit) < limit {
			limit = int(opts.Limit)
		}

		result.Items = items[:limit]

		// A full page cut at Limit carries a LastEvaluatedKey even when it
		// consumed the final item; exhaustion shows on the next, empty
		// page, matching DynamoDB.
		if limit > 0 && (limit < len(items) || limit == int(opts.Limit)) {
			last := items[limit-1]
			lastKey := storage.Item{s.pkName: last[s.pkName]}
			if s.skName != "" {
				lastKey[s.skName] = last[s.skName]
			}
			result.LastEvaluatedKey = lastKey
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// BatchDelete implements the EntityStore interface.
func (s *Store) BatchDelete(ctx context.Context, keys []storage.Key) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > storage.MaxBatchSize {
		return fmt.Errorf("%w: %d keys (limit is %d)", storage.ErrBatchTooLarge, len(keys), storage.MaxBatchSize)
	}

	keyAttrs := make([]storage.Item, 0, len(keys))
	for _, key := range keys {
		attrs, err := s.keyAttributes(key)
		if err != nil {
			return err
		}
		keyAttrs = append(keyAttrs, attrs)
	}

	return s.metrics.Measure("batchDelete", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, attrs := range keyAttrs {
			s.remove(attrs)
		}
		return nil
	})
}

// GetMetrics implements the EntityStore interface.
func (s *Store) GetMetrics() map[string]interface{} {
	return s.metrics.Snapshot()
}

// OperationCount returns how many times the named operation ran. Tests use
// this to assert batching behavior.
func (s *Store) OperationCount(op string) int64 {
	return s.metrics.Count(op)
}

// ResetMetrics clears the store's operation counters.
func (s *Store) ResetMetrics() {
	s.metrics.Reset()
}

// store inserts or replaces the item identified by its key attributes.
// Callers must hold the write lock.
func (s *Store) store(item storage.Item) error {
	if _, ok := item[s.pkName]; !ok {
		return fmt.Errorf("item is missing partition key attribute %q", s.pkName)
	}
	if s.skName != "" {
		if _, ok := item[s.skName]; !ok {
			return fmt.Errorf("item is missing sort key attribute %q", s.skName)
		}
	}

	partition := attrKey(item[s.pkName])
	items := s.partitions[partition]

	for i, existing := range items {
		if s.sameKey(existing, item) {
			items[i] = item
			return nil
		}
	}

	s.partitions[partition] = append(items, item)
	return nil
}

// lookup finds the stored item matching the key attributes of probe.
// Callers must hold at least the read lock.
func (s *Store) lookup(probe storage.Item) (storage.Item, bool) {
	for _, existing := range s.partitions[attrKey(probe[s.pkName])] {
		if s.sameKey(existing, probe) {
			return existing, true
		}
	}
	return nil, false
}

// remove drops the item matching the key attributes of probe, if present.
// Callers must hold the write lock.
func (s *Store) remove(probe storage.Item) {
	partition := attrKey(probe[s.pkName])
	items := s.partitions[partition]

	for i, existing := range items {
		if s.sameKey(existing, probe) {
			s.partitions[partition] = append(items[:i], items[i+1:]...)
			return
		}
	}
}

func (s *Store) keyAttributes(key storage.Key) (storage.Item, error) {
	partitionAttr, err := attributevalue.Marshal(key.Partition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal partition key: %w", err)
	}

	attrs := storage.Item{s.pkName: partitionAttr}

	if key.Sort != nil {
		if s.skName == "" {
			return nil, errors.New("sort key value given for a table without a sort key")
		}
		sortAttr, err := attributevalue.Marshal(key.Sort)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sort key: %w", err)
		}
		attrs[s.skName] = sortAttr
	}

	return attrs, nil
}

func (s *Store) sameKey(a, b storage.Item) bool {
	if !equalAttr(a[s.pkName], b[s.pkName]) {
		return false
	}
	if s.skName == "" {
		return true
	}
	return equalAttr(a[s.skName], b[s.skName])
}

// attrKey renders a scalar attribute value as a map key.
func attrKey(attr types.AttributeValue) string {
	switch v := attr.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case *types.AttributeValueMemberB:
		return "B:" + string(v.Value)
	default:
		return fmt.Sprintf("%T:%v", attr, attr)
	}
}

// equalAttr reports whether two scalar attribute values are equal, with
// numeric comparison for number attributes.
func equalAttr(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return compareAttr(a, b) == 0
}

// compareAttr orders two scalar attribute values of the same kind: numbers
// numerically, everything else by string form.
func compareAttr(a, b types.AttributeValue) int {
	an, aIsNum := a.(*types.AttributeValueMemberN)
	bn, bIsNum := b.(*types.AttributeValueMemberN)
	if aIsNum && bIsNum {
		af, aErr := strconv.ParseFloat(an.Value, 64)
		bf, bErr := strconv.ParseFloat(bn.Value, 64)
		if aErr == nil && bErr == nil {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(attrKey(a), attrKey(b))
}
