package dynamo

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
)

//go:generate mockgen -source=client.go -destination=mocks/mock_api.go -package=mocks API

// API is the slice of the DynamoDB client the adapter calls.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// NewClient loads the default AWS config for region. A non-empty endpoint
// points the client at DynamoDB Local.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "dynamo.NewClient.LoadDefaultConfig")
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// DynamoService wraps the client with the handful of table operations the
// store needs.
type DynamoService struct {
	Client API
	Logger *slog.Logger
}

// GetItem returns nil, nil when the key does not exist.
func (ds *DynamoService) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get item from table '%s'", tableName)
	}
	return output.Item, nil
}

func (ds *DynamoService) PutItem(ctx context.Context, tableName string, item interface{}) error {
	marshaledItem, err := attributevalue.MarshalMap(item)
	if err != nil {
		return errors.Wrap(err, "failed to marshal item")
	}
	_, err = ds.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      marshaledItem,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to put item in table '%s'", tableName)
	}
	return nil
}

// UpdateItem applies updateExpression to the item at key.
func (ds *DynamoService) UpdateItem(
	ctx context.Context,
	tableName string,
	updateExpression string,
	key map[string]types.AttributeValue,
	expressionAttributeValues map[string]types.AttributeValue,
	expressionAttributeNames map[string]string,
) error {
	if len(key) == 0 {
		return errors.New("update failed: key cannot be empty")
	}
	if updateExpression == "" {
		return errors.New("update failed: updateExpression cannot be empty")
	}
	_, err := ds.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       key,
		UpdateExpression:          aws.String(updateExpression),
		ExpressionAttributeValues: expressionAttributeValues,
		ExpressionAttributeNames:  expressionAttributeNames,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to update item in table '%s'", tableName)
	}
	return nil
}

// DeleteItem removes an item. A non-empty condition makes the delete
// conditional; a failed condition is reported as (false, nil).
func (ds *DynamoService) DeleteItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	condition string,
	expressionAttributeNames map[string]string,
	expressionAttributeValues map[string]types.AttributeValue,
) (bool, error) {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key:       key,
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
		input.ExpressionAttributeNames = expressionAttributeNames
		input.ExpressionAttributeValues = expressionAttributeValues
	}
	_, err := ds.Client.DeleteItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to delete item from table '%s'", tableName)
	}
	return true, nil
}

// QueryAll pages through a query until limit items are collected or the
// result set is exhausted. limit <= 0 means no limit.
func (ds *DynamoService) QueryAll(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		output, err := ds.Client.Query(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to query table '%s'", aws.ToString(input.TableName))
		}
		items = append(items, output.Items...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
		if len(output.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

// ScanAll pages through a filtered scan the same way QueryAll does.
func (ds *DynamoService) ScanAll(ctx context.Context, input *dynamodb.ScanInput, limit int) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		output, err := ds.Client.Scan(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan table '%s'", aws.ToString(input.TableName))
		}
		items = append(items, output.Items...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
		if len(output.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

// BatchWriteItems writes multiple requests in batches of 25, resubmitting
// anything DynamoDB reports as unprocessed.
func (ds *DynamoService) BatchWriteItems(ctx context.Context, tableName string, writeRequests []types.WriteRequest) error {
	const maxBatchSize = 25
	const maxRounds = 5

	for i := 0; i < len(writeRequests); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(writeRequests) {
			end = len(writeRequests)
		}

		pending := map[string][]types.WriteRequest{tableName: writeRequests[i:end]}
		for round := 0; len(pending[tableName]) > 0; round++ {
			if round == maxRounds {
				return errors.Errorf("batch write to table '%s' left %d unprocessed items", tableName, len(pending[tableName]))
			}
			output, err := ds.Client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return errors.Wrapf(err, "failed to batch write items to table '%s'", tableName)
			}
			pending = output.UnprocessedItems
		}
	}
	return nil
}

// TransactWriteItems commits items atomically. A cancelled transaction
// (a condition failed or a concurrent transaction won) is reported as
// errTransactionCancelled so callers can map it to a conflict.
func (ds *DynamoService) TransactWriteItems(ctx context.Context, items []types.TransactWriteItem) error {
	_, err := ds.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			if ds.Logger != nil {
				ds.Logger.Debug("dynamo transaction cancelled", "reasons", cancellationCodes(cancelled))
			}
			return errTransactionCancelled
		}
		var conflict *types.TransactionConflictException
		if errors.As(err, &conflict) {
			return errTransactionCancelled
		}
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

var errTransactionCancelled = errors.New("dynamo transaction cancelled")

func cancellationCodes(e *types.TransactionCanceledException) []string {
	codes := make([]string, 0, len(e.CancellationReasons))
	for _, r := range e.CancellationReasons {
		codes = append(codes, aws.ToString(r.Code))
	}
	return codes
}
