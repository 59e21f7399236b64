package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/goalvault/backend/internal/metrics"
	"github.com/goalvault/backend/pkg/storage"
)

// unprocessedRetries bounds re-submission of keys DynamoDB returned as
// unprocessed from a batch call.
const unprocessedRetries = 3

// Config holds the configuration for a DynamoDB-backed store.
type Config struct {
	Region       string
	TableName    string
	PartitionKey string
	SortKey      string
	Endpoint     string
}

// Store is an EntityStore implementation on a single DynamoDB table.
type Store struct {
	client  *dynamodb.Client
	table   string
	pkName  string
	skName  string
	metrics *metrics.Collector
}

// New creates a Store for the table described by cfg.
func New(cfg Config) (*Store, error) {
	if cfg.TableName == "" {
		return nil, errors.New("table name is required")
	}
	if cfg.PartitionKey == "" {
		return nil, errors.New("partition key name is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	if cfg.Endpoint != "" {
		// Use a custom endpoint (e.g., for local DynamoDB)
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		})
		awsCfg.EndpointResolverWithOptions = customResolver
	}

	return NewWithClient(dynamodb.NewFromConfig(awsCfg), cfg), nil
}

// NewWithClient creates a Store using an already-configured client. Callers
// holding several table stores can share one client between them.
func NewWithClient(client *dynamodb.Client, cfg Config) *Store {
	return &Store{
		client:  client,
		table:   cfg.TableName,
		pkName:  cfg.PartitionKey,
		skName:  cfg.SortKey,
		metrics: metrics.NewCollector(),
	}
}

// Builder adapts New to the storage.Factory signature. Recognized config
// keys: region, tableName, partitionKey, sortKey, endpoint.
func Builder(config map[string]interface{}) (storage.EntityStore, error) {
	cfg := Config{
		Region: "us-east-1",
	}

	if region, ok := config["region"].(string); ok {
		cfg.Region = region
	}
	if tableName, ok := config["tableName"].(string); ok {
		cfg.TableName = tableName
	}
	if partitionKey, ok := config["partitionKey"].(string); ok {
		cfg.PartitionKey = partitionKey
	}
	if sortKey, ok := config["sortKey"].(string); ok {
		cfg.SortKey = sortKey
	}
	if endpoint, ok := config["endpoint"].(string); ok {
		cfg.Endpoint = endpoint
	}

	return New(cfg)
}

// Get implements the EntityStore interface.
func (s *Store) Get(ctx context.Context, key storage.Key) (storage.Item, error) {
	keyAttrs, err := s.keyAttributes(key)
	if err != nil {
		return nil, err
	}

	var result *dynamodb.GetItemOutput
	err = s.metrics.Measure("get", func() error {
		var opErr error
		result, opErr = s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            keyAttrs,
			ConsistentRead: aws.Bool(true),
		})
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem operation failed: %w", err)
	}

	if len(result.Item) == 0 {
		return nil, storage.ErrItemNotFound
	}

	return result.Item, nil
}

// Put implements the EntityStore interface.
func (s *Store) Put(ctx context.Context, item storage.Item) error {
	err := s.metrics.Measure("put", func() error {
		_, opErr := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item:      item,
		})
		return opErr
	})
	if err != nil {
		return fmt.Errorf("PutItem operation failed: %w", err)
	}

	return nil
}

// PutIf implements the EntityStore interface. The put succeeds only while
// attribute still holds expected on the stored item.
func (s *Store) PutIf(ctx context.Context, item storage.Item, attribute string, expected interface{}) error {
	expectedAttr, err := attributevalue.Marshal(expected)
	if err != nil {
		return fmt.Errorf("failed to marshal expected value: %w", err)
	}

	err = s.metrics.Measure("putIf", func() error {
		_, opErr := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                item,
			ConditionExpression: aws.String("#attr = :expected"),
			ExpressionAttributeNames: map[string]string{
				"#attr": attribute,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":expected": expectedAttr,
			},
		})
		return opErr
	})
	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return storage.ErrConditionFailed
		}
		return fmt.Errorf("conditional PutItem operation failed: %w", err)
	}

	return nil
}

// Delete implements the EntityStore interface.
func (s *Store) Delete(ctx context.Context, key storage.Key) error {
	keyAttrs, err := s.keyAttributes(key)
	if err != nil {
		return err
	}

	err = s.metrics.Measure("delete", func() error {
		_, opErr := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key:       keyAttrs,
		})
		return opErr
	})
	if err != nil {
		return fmt.Errorf("DeleteItem operation failed: %w", err)
	}

	return nil
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

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": s.pkName,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": partitionAttr,
		},
		ScanIndexForward: aws.Bool(opts.ScanForward),
		ConsistentRead:   aws.Bool(opts.ConsistentRead),
	}

	if opts.Limit > 0 {
		input.Limit = aws.Int32(opts.Limit)
	}
	if len(opts.ExclusiveStartKey) > 0 {
		input.ExclusiveStartKey = opts.ExclusiveStartKey
	}

	var result *dynamodb.QueryOutput
	err = s.metrics.Measure("query", func() error {
		var opErr error
		result, opErr = s.client.Query(ctx, input)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("Query operation failed: %w", err)
	}

	return &storage.QueryResult{
		Items:            result.Items,
		LastEvaluatedKey: result.LastEvaluatedKey,
	}, nil
}

// BatchDelete implements the EntityStore interface. Keys DynamoDB reports
// as unprocessed are re-submitted a bounded number of times.
func (s *Store) BatchDelete(ctx context.Context, keys []storage.Key) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > storage.MaxBatchSize {
		return fmt.Errorf("%w: %d keys (limit is %d)", storage.ErrBatchTooLarge, len(keys), storage.MaxBatchSize)
	}

	writeRequests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		keyAttrs, err := s.keyAttributes(key)
		if err != nil {
			return err
		}
		writeRequests = append(writeRequests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: keyAttrs,
			},
		})
	}

	for attempt := 0; attempt < unprocessedRetries; attempt++ {
		var result *dynamodb.BatchWriteItemOutput
		err := s.metrics.Measure("batchDelete", func() error {
			var opErr error
			result, opErr = s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{
					s.table: writeRequests,
				},
			})
			return opErr
		})
		if err != nil {
			return fmt.Errorf("BatchWriteItem operation failed: %w", err)
		}

		unprocessed, ok := result.UnprocessedItems[s.table]
		if !ok || len(unprocessed) == 0 {
			return nil
		}
		writeRequests = unprocessed
	}

	return fmt.Errorf("%d keys were not processed after %d attempts", len(writeRequests), unprocessedRetries)
}

// GetMetrics implements the EntityStore interface.
func (s *Store) GetMetrics() map[string]interface{} {
	return s.metrics.Snapshot()
}

// ResetMetrics clears the store's operation counters.
func (s *Store) ResetMetrics() {
	s.metrics.Reset()
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
