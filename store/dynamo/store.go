// Package dynamo implements store.Store on DynamoDB. Multi-item mutations
// are TransactWriteItems calls guarded by condition expressions; match
// updates use an optimistic version attribute.
package dynamo

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"blindshake_server/models"
	"blindshake_server/store"
)

// maxUpdateAttempts bounds optimistic retries of UpdateMatch.
const maxUpdateAttempts = 5

type Store struct {
	ds     *DynamoService
	tables Tables
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

func New(client API, tables Tables, logger *slog.Logger) *Store {
	return &Store{
		ds:     &DynamoService{Client: client, Logger: logger},
		tables: tables,
		logger: logger,
	}
}

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{name: &types.AttributeValueMemberS{Value: value}}
}

func numberValue(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func (s *Store) PutSeeker(ctx context.Context, seeker *models.Seeker) error {
	if err := s.ds.PutItem(ctx, s.tables.Seekers, toSeekerItem(seeker)); err != nil {
		return errors.Wrap(err, "dynamoStore.PutSeeker")
	}
	return nil
}

func (s *Store) GetSeeker(ctx context.Context, userID string) (*models.Seeker, error) {
	item, err := s.ds.GetItem(ctx, s.tables.Seekers, stringKey("userId", userID))
	if err != nil {
		return nil, errors.Wrap(err, "dynamoStore.GetSeeker")
	}
	if item == nil {
		return nil, store.ErrNotFound
	}
	var it seekerItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, errors.Wrap(err, "dynamoStore.GetSeeker.Unmarshal")
	}
	seeker := it.toModel()
	return &seeker, nil
}

func (s *Store) DeleteSeeker(ctx context.Context, userID string) error {
	if _, err := s.ds.DeleteItem(ctx, s.tables.Seekers, stringKey("userId", userID), "", nil, nil); err != nil {
		return errors.Wrap(err, "dynamoStore.DeleteSeeker")
	}
	return nil
}

// SeekersInCell queries the cell index by bucket and geocell prefix.
// Prefixes shorter than the bucket fall back to a filtered scan.
func (s *Store) SeekersInCell(ctx context.Context, prefix string) ([]models.Seeker, error) {
	var (
		items []map[string]types.AttributeValue
		err   error
	)
	if len(prefix) >= cellBucketPrecision {
		items, err = s.ds.QueryAll(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tables.Seekers),
			IndexName:              aws.String(CellIndex),
			KeyConditionExpression: aws.String("cellBucket = :bucket AND begins_with(geocell, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":bucket": &types.AttributeValueMemberS{Value: prefix[:cellBucketPrecision]},
				":prefix": &types.AttributeValueMemberS{Value: prefix},
			},
		}, 0)
	} else {
		items, err = s.ds.ScanAll(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.tables.Seekers),
			FilterExpression: aws.String("begins_with(geocell, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: prefix},
			},
		}, 0)
	}
	if err != nil {
		return nil, errors.Wrap(err, "dynamoStore.SeekersInCell")
	}
	var records []seekerItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, errors.Wrap(err, "dynamoStore.SeekersInCell.Unmarshal")
	}
	out := make([]models.Seeker, 0, len(records))
	for _, r := range records {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) ExpiredSeekers(ctx context.Context, now time.Time, limit int) ([]models.Seeker, error) {
	items, err := s.ds.ScanAll(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(s.tables.Seekers),
		FilterExpression:          aws.String("expiresAt <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": numberValue(millis(now))},
	}, limit)
	if err != nil {
		return nil, errors.Wrap(err, "dynamoStore.ExpiredSeekers")
	}
	var records []seekerItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, errors.Wrap(err, "dynamoStore.ExpiredSeekers.Unmarshal")
	}
	out := make([]models.Seeker, 0, len(records))
	for _, r := range records {
		out = append(out, r.toModel())
	}
	return out, nil
}

// DeleteSeekerIfExpired lets DynamoDB evaluate the expiry on the stored
// item, so a concurrent refresh makes the condition fail.
func (s *Store) DeleteSeekerIfExpired(ctx context.Context, userID string, now time.Time) (bool, error) {
	deleted, err := s.ds.DeleteItem(ctx, s.tables.Seekers, stringKey("userId", userID),
		"expiresAt <= :now", nil,
		map[string]types.AttributeValue{":now": numberValue(millis(now))})
	if err != nil {
		return false, errors.Wrap(err, "dynamoStore.DeleteSeekerIfExpired")
	}
	return deleted, nil
}

// CreateMatch commits the match, both pool evictions and both pointer
// writes in one transaction. Any failed guard cancels all of it.
func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	item, err := attributevalue.MarshalMap(toMatchItem(m))
	if err != nil {
		return errors.Wrap(err, "dynamoStore.CreateMatch.Marshal")
	}
	now := numberValue(millis(m.CreatedAt))

	txItems := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(s.tables.Matches),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(matchId)"),
		},
	}}
	for _, userID := range m.Participants {
		txItems = append(txItems, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName:                 aws.String(s.tables.Seekers),
				Key:                       stringKey("userId", userID),
				ConditionExpression:       aws.String("attribute_exists(userId) AND expiresAt > :now"),
				ExpressionAttributeValues: map[string]types.AttributeValue{":now": now},
			},
		})
	}
	for _, userID := range m.Participants {
		txItems = append(txItems, types.TransactWriteItem{
			Update: &types.Update{
				TableName:           aws.String(s.tables.Pointers),
				Key:                 stringKey("userId", userID),
				UpdateExpression:    aws.String("SET currentMatchId = :matchId, lastMatchAt = :now"),
				ConditionExpression: aws.String("attribute_not_exists(currentMatchId) OR currentMatchId = :empty"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":matchId": &types.AttributeValueMemberS{Value: m.ID},
					":now":     now,
					":empty":   &types.AttributeValueMemberS{Value: ""},
				},
			},
		})
	}

	if err := s.ds.TransactWriteItems(ctx, txItems); err != nil {
		if errors.Is(err, errTransactionCancelled) {
			return store.ErrConflict
		}
		return errors.Wrap(err, "dynamoStore.CreateMatch.Transact")
	}
	return nil
}

func (s *Store) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	item, err := s.ds.GetItem(ctx, s.tables.Matches, stringKey("matchId", matchID))
	if err != nil {
		return nil, errors.Wrap(err, "dynamoStore.GetMatch")
	}
	if item == nil {
		return nil, store.ErrNotFound
	}
	var it matchItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, errors.Wrap(err, "dynamoStore.GetMatch.Unmarshal")
	}
	return it.toModel(), nil
}

// UpdateMatch reads the match, runs mutate and commits conditioned on the
// version it read. A lost race re-runs mutate on the fresh item.
func (s *Store) UpdateMatch(ctx context.Context, matchID string, mutate store.MatchMutator) (*models.Match, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.GetMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		working := current.Clone()
		update, err := mutate(working)
		if err != nil {
			return nil, err
		}
		if update == nil {
			return current, nil
		}
		working.Version = current.Version + 1

		txItems, err := s.updateItems(ctx, current.Version, working, update)
		if err != nil {
			return nil, err
		}
		err = s.ds.TransactWriteItems(ctx, txItems)
		if err == nil {
			return working, nil
		}
		if !errors.Is(err, errTransactionCancelled) {
			return nil, errors.Wrap(err, "dynamoStore.UpdateMatch.Transact")
		}
		s.logger.Debug("match update lost a race, retrying", "matchId", matchID, "attempt", attempt+1)
	}
	return nil, store.ErrConflict
}

func (s *Store) updateItems(ctx context.Context, readVersion int64, m *models.Match, update *store.MatchUpdate) ([]types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(toMatchItem(m))
	if err != nil {
		return nil, errors.Wrap(err, "dynamoStore.UpdateMatch.Marshal")
	}
	txItems := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                 aws.String(s.tables.Matches),
			Item:                      item,
			ConditionExpression:       aws.String("#version = :version"),
			ExpressionAttributeNames:  map[string]string{"#version": "version"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":version": numberValue(readVersion)},
		},
	}}

	if update.Message != nil {
		msgItem, err := attributevalue.MarshalMap(toMessageItem(update.Message))
		if err != nil {
			return nil, errors.Wrap(err, "dynamoStore.UpdateMatch.MarshalMessage")
		}
		txItems = append(txItems, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.tables.Messages),
				Item:                msgItem,
				ConditionExpression: aws.String("attribute_not_exists(sortKey)"),
			},
		})
	}

	if update.ClearPointers {
		for _, userID := range m.Participants {
			current, err := s.CurrentMatchID(ctx, userID)
			if err != nil {
				return nil, err
			}
			if current != m.ID {
				continue
			}
			txItems = append(txItems, types.TransactWriteItem{
				Update: &types.Update{
					TableName:                 aws.String(s.tables.Pointers),
					Key:                       stringKey("userId", userID),
					UpdateExpression:          aws.String("REMOVE currentMatchId"),
					ConditionExpression:       aws.String("currentMatchId = :matchId"),
					ExpressionAttributeValues: map[string]types.AttributeValue{":matchId": &types.AttributeValueMemberS{Value: m.ID}},
				},
			})
		}
	}
	return txItems, nil
}

func (s *Store) CurrentMatchID(ctx context.Context, userID string) (string, error) {
	item, err := s.ds.GetItem(ctx, s.tables.Pointers, stringKey("userId", userID))
	if err != nil {
		return "", errors.Wrap(err, "dynamoStore.CurrentMatchID")
	}
	if item == nil {
		return "", nil
	}
	var it pointerItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return "", errors.Wrap(err, "dynamoStore.CurrentMatchID.Unmarshal")
	}
	return it.CurrentMatchID, nil
}

func (s *Store) AnonymousMatchesEndingBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error) {
	return s.queryByStatus(ctx, PhaseEndsIndex, models.StatusAnonymous, "anonymousPhaseEnds", t, limit)
}

func (s *Store) ArchivedMatchesBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error) {
	return s.queryByStatus(ctx, ArchivedAtIndex, models.StatusArchived, "archivedAt", t, limit)
}

func (s *Store) queryByStatus(ctx context.Context, index, status, field string, t time.Time, limit int) ([]models.Match, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Matches),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("#status = :status AND #field <= :t"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#field":  field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
			":t":      numberValue(millis(t)),
		},
		ScanIndexForward: aws.Bool(true),
	}
	items, err := s.ds.QueryAll(ctx, input, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "dynamoStore.queryByStatus(%s)", status)
	}
	return unmarshalMatches(items)
}

// DeleteMatch removes messages before the match so an interrupted purge
// leaves the match behind for the next run.
func (s *Store) DeleteMatch(ctx context.Context, matchID string) (int, error) {
	if _, err := s.GetMatch(ctx, matchID); err != nil {
		return 0, err
	}
	items, err := s.ds.QueryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.Messages),
		KeyConditionExpression:    aws.String("matchId = :matchId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":matchId": &types.AttributeValueMemberS{Value: matchID}},
		ProjectionExpression:      aws.String("matchId, sortKey"),
	}, 0)
	if err != nil {
		return 0, errors.Wrap(err, "dynamoStore.DeleteMatch.QueryMessages")
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
				"matchId": item["matchId"],
				"sortKey": item["sortKey"],
			}},
		})
	}
	if err := s.ds.BatchWriteItems(ctx, s.tables.Messages, requests); err != nil {
		return 0, errors.Wrap(err, "dynamoStore.DeleteMatch.Messages")
	}
	if _, err := s.ds.DeleteItem(ctx, s.tables.Matches, stringKey("matchId", matchID), "", nil, nil); err != nil {
		return 0, errors.Wrap(err, "dynamoStore.DeleteMatch")
	}
	return len(items), nil
}

// ListMessages reads the newest messages first and returns them in
// chronological order.
func (s *Store) ListMessages(ctx context.Context, matchID string, limit int) ([]models.Message, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.Messages),
		KeyConditionExpression:    aws.String("matchId = :matchId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":matchId": &types.AttributeValueMemberS{Value: matchID}},
		ScanIndexForward:          aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	items, err := s.ds.QueryAll(ctx, input, limit)
	if err != nil {
		return nil, errors.Wrap(err, "dynamoStore.ListMessages")
	}
	var records []messageItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, errors.Wrap(err, "dynamoStore.ListMessages.Unmarshal")
	}
	out := make([]models.Message, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r.toModel()
	}
	return out, nil
}

// MatchesForUser queries both participant indexes since a user can sit
// in either slot of the pair.
func (s *Store) MatchesForUser(ctx context.Context, userID string) ([]models.Match, error) {
	var out []models.Match
	for _, idx := range []struct{ index, field string }{
		{User1Index, "user1Id"},
		{User2Index, "user2Id"},
	} {
		items, err := s.ds.QueryAll(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tables.Matches),
			IndexName:                 aws.String(idx.index),
			KeyConditionExpression:    aws.String(idx.field + " = :userId"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":userId": &types.AttributeValueMemberS{Value: userID}},
		}, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "dynamoStore.MatchesForUser(%s)", idx.index)
		}
		matches, err := unmarshalMatches(items)
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Close(ctx context.Context) error { return nil }

func unmarshalMatches(items []map[string]types.AttributeValue) ([]models.Match, error) {
	var records []matchItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, errors.Wrap(err, "dynamoStore.unmarshalMatches")
	}
	out := make([]models.Match, 0, len(records))
	for _, r := range records {
		out = append(out, *r.toModel())
	}
	return out, nil
}
