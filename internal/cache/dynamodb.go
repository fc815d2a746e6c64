package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

func init() {
	RegisterFactory(dynamoFactory{})
}

type dynamoFactory struct{}

func (dynamoFactory) Type() string { return "dynamodb" }

func (dynamoFactory) Validate(cfg Config) error {
	if cfg.DynamoDB.Region == "" {
		return fmt.Errorf("cache.dynamodb.region is required when cache.type is 'dynamodb'")
	}
	if cfg.DynamoDB.TableName == "" {
		return fmt.Errorf("cache.dynamodb.table_name is required when cache.type is 'dynamodb'")
	}
	if (cfg.DynamoDB.AccessKeyID == "") != (cfg.DynamoDB.SecretAccessKey == "") {
		return fmt.Errorf("cache.dynamodb access_key_id and secret_access_key must be set together")
	}
	return nil
}

func (dynamoFactory) Create(ctx context.Context, cfg Config) (core.CacheStore, error) {
	return NewDynamoDBStore(ctx, cfg.DynamoDB)
}

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDBStore keeps entries in a table with a string "key" partition key,
// a binary "value" and an optional numeric "ttl" in epoch seconds.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
}

// NewDynamoDBStore loads AWS configuration for cfg.Region and checks that
// the table exists.
func NewDynamoDBStore(ctx context.Context, cfg DynamoDBConfig) (*DynamoDBStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	var opts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	client := dynamodb.NewFromConfig(awsCfg, opts...)

	describeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.DescribeTable(describeCtx, &dynamodb.DescribeTableInput{TableName: aws.String(cfg.TableName)}); err != nil {
		return nil, fmt.Errorf("failed to connect to DynamoDB table %s: %w", cfg.TableName, err)
	}
	return NewDynamoDBStoreFromClient(client, cfg.TableName), nil
}

// NewDynamoDBStoreFromClient wraps an existing client.
func NewDynamoDBStoreFromClient(client DynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName, now: time.Now}
}

func (d *DynamoDBStore) keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

func (d *DynamoDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.keyAttr(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if out.Item == nil {
		return nil, core.ErrCacheMiss
	}

	// DynamoDB deletes expired items lazily, so expiry is checked here too.
	if ttlAttr, ok := out.Item["ttl"].(*types.AttributeValueMemberN); ok {
		if ttl, err := strconv.ParseInt(ttlAttr.Value, 10, 64); err == nil && d.now().Unix() > ttl {
			return nil, core.ErrCacheMiss
		}
	}

	value, ok := out.Item["value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("invalid value format for key %s", key)
	}
	return value.Value, nil
}

func (d *DynamoDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := d.keyAttr(key)
	item["value"] = &types.AttributeValueMemberB{Value: value}
	item["created_at"] = &types.AttributeValueMemberS{Value: d.now().UTC().Format(time.RFC3339)}
	if ttl > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(d.now().Add(ttl).Unix(), 10)}
	}

	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (d *DynamoDBStore) Delete(ctx context.Context, key string) error {
	if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.keyAttr(key),
	}); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the AWS client holds no long-lived connections.
func (d *DynamoDBStore) Close() error {
	return nil
}
