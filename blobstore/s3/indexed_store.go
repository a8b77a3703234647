package s3

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/aggcache/blobstore"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// IndexedStore wraps a blob store and records every blob name in a
// DynamoDB table. List is answered from the table.
//
// Table schema:
//   - Partition key: base_uri (String)
//   - Sort key: name (String)
//
// The blob is written before its index entry and the entry is removed
// before the blob, so a listed name is readable unless a concurrent
// delete is in flight.
type IndexedStore struct {
	blobstore.Store
	ddb     DDBClient
	table   string
	baseURI string
}

var _ blobstore.Store = (*IndexedStore)(nil)

// NewIndexedStore creates a new DynamoDB-indexed store.
func NewIndexedStore(store blobstore.Store, ddb DDBClient, table, baseURI string) *IndexedStore {
	return &IndexedStore{
		Store:   store,
		ddb:     ddb,
		table:   table,
		baseURI: baseURI,
	}
}

// Put writes the blob and then its index entry.
func (s *IndexedStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.Store.Put(ctx, name, data); err != nil {
		return err
	}
	_, err := s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"name":     &types.AttributeValueMemberS{Value: name},
			"size":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", len(data))},
		},
	})
	if err != nil {
		return fmt.Errorf("s3: index %s: %w", name, err)
	}
	return nil
}

// Delete removes the index entry and then the blob.
func (s *IndexedStore) Delete(ctx context.Context, name string) error {
	_, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"name":     &types.AttributeValueMemberS{Value: name},
		},
	})
	if err != nil {
		return fmt.Errorf("s3: unindex %s: %w", name, err)
	}
	return s.Store.Delete(ctx, name)
}

// List queries the index for names starting with prefix.
func (s *IndexedStore) List(ctx context.Context, prefix string) ([]string, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("base_uri = :uri AND begins_with(#n, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri":    &types.AttributeValueMemberS{Value: s.baseURI},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
		ProjectionExpression: aws.String("#n"),
	}

	var names []string
	for {
		resp, err := s.ddb.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("s3: query index: %w", err)
		}
		for _, item := range resp.Items {
			if v, ok := item["name"].(*types.AttributeValueMemberS); ok {
				names = append(names, v.Value)
			}
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	sort.Strings(names)
	return names, nil
}
