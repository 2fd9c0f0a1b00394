package dynamo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blindshake_server/models"
	"blindshake_server/store"
	"blindshake_server/store/dynamo/mocks"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *mocks.MockAPI) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(api, NewTables("test_"), logger), api
}

func testMatch() *models.Match {
	return &models.Match{
		ID:                 "m1",
		Participants:       []string{"alice", "bob"},
		Status:             models.StatusAnonymous,
		CreatedAt:          t0,
		UpdatedAt:          t0,
		AnonymousPhaseEnds: t0.Add(15 * time.Minute),
		ParticipantInfo: map[string]models.ParticipantInfo{
			"alice": {JoinedAt: t0.Add(-10 * time.Second)},
			"bob":   {JoinedAt: t0.Add(-2 * time.Second)},
		},
		Version: 3,
	}
}

func matchOutput(t *testing.T, m *models.Match) *dynamodb.GetItemOutput {
	item, err := attributevalue.MarshalMap(toMatchItem(m))
	require.NoError(t, err)
	return &dynamodb.GetItemOutput{Item: item}
}

func TestMatchItemConversionKeepsTimesAndInfo(t *testing.T) {
	m := testMatch()
	revealed := t0.Add(20 * time.Minute)
	m.RevealedAt = &revealed
	m.LastMessage = &models.LastMessage{Content: "hi", SenderID: "bob", Timestamp: t0.Add(time.Minute)}

	got := toMatchItem(m).toModel()
	assert.Equal(t, m.Participants, got.Participants)
	assert.True(t, got.AnonymousPhaseEnds.Equal(m.AnonymousPhaseEnds))
	require.NotNil(t, got.RevealedAt)
	assert.True(t, got.RevealedAt.Equal(revealed))
	assert.Nil(t, got.ArchivedAt)
	assert.True(t, got.ParticipantInfo["bob"].JoinedAt.Equal(t0.Add(-2*time.Second)))
	assert.Equal(t, "hi", got.LastMessage.Content)
	assert.Equal(t, int64(3), got.Version)
}

func TestSeekerItemBucketsOnGeocellPrefix(t *testing.T) {
	it := toSeekerItem(&models.Seeker{UserID: "u", Geocell: "9q9hvu", ExpiresAt: t0})
	assert.Equal(t, "9q", it.CellBucket)
	assert.Equal(t, t0.Unix(), it.TTL)
}

func TestMessageSortKeyOrdersByTime(t *testing.T) {
	a := messageSortKey(&models.Message{ID: "z", Timestamp: t0})
	b := messageSortKey(&models.Message{ID: "a", Timestamp: t0.Add(time.Millisecond)})
	assert.Less(t, a, b)
}

func TestCreateMatchTransaction(t *testing.T) {
	t.Run("writes match, evicts both seekers and sets both pointers", func(t *testing.T) {
		s, api := newTestStore(t)
		api.EXPECT().TransactWriteItems(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
				require.Len(t, in.TransactItems, 5)
				put := in.TransactItems[0].Put
				require.NotNil(t, put)
				assert.Equal(t, "test_Matches", aws.ToString(put.TableName))
				assert.Equal(t, "attribute_not_exists(matchId)", aws.ToString(put.ConditionExpression))
				for _, it := range in.TransactItems[1:3] {
					require.NotNil(t, it.Delete)
					assert.Equal(t, "test_ActiveSeekers", aws.ToString(it.Delete.TableName))
					assert.Contains(t, aws.ToString(it.Delete.ConditionExpression), "expiresAt > :now")
				}
				for _, it := range in.TransactItems[3:] {
					require.NotNil(t, it.Update)
					assert.Equal(t, "test_UserMatches", aws.ToString(it.Update.TableName))
				}
				return &dynamodb.TransactWriteItemsOutput{}, nil
			})

		require.NoError(t, s.CreateMatch(context.Background(), testMatch()))
	})

	t.Run("cancelled transaction is a conflict", func(t *testing.T) {
		s, api := newTestStore(t)
		api.EXPECT().TransactWriteItems(gomock.Any(), gomock.Any()).
			Return(nil, &types.TransactionCanceledException{Message: aws.String("ConditionalCheckFailed")})

		err := s.CreateMatch(context.Background(), testMatch())
		assert.ErrorIs(t, err, store.ErrConflict)
	})
}

func TestDeleteSeekerIfExpired(t *testing.T) {
	now := t0

	t.Run("condition failure means the entry was refreshed", func(t *testing.T) {
		s, api := newTestStore(t)
		api.EXPECT().DeleteItem(gomock.Any(), gomock.Any()).
			Return(nil, &types.ConditionalCheckFailedException{})

		deleted, err := s.DeleteSeekerIfExpired(context.Background(), "alice", now)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("delete is conditioned on stored expiry", func(t *testing.T) {
		s, api := newTestStore(t)
		api.EXPECT().DeleteItem(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
				assert.Equal(t, "expiresAt <= :now", aws.ToString(in.ConditionExpression))
				return &dynamodb.DeleteItemOutput{}, nil
			})

		deleted, err := s.DeleteSeekerIfExpired(context.Background(), "alice", now)
		require.NoError(t, err)
		assert.True(t, deleted)
	})
}

func TestUpdateMatchRetriesOnLostRace(t *testing.T) {
	s, api := newTestStore(t)
	m := testMatch()

	gomock.InOrder(
		api.EXPECT().GetItem(gomock.Any(), gomock.Any()).Return(matchOutput(t, m), nil),
		api.EXPECT().TransactWriteItems(gomock.Any(), gomock.Any()).
			Return(nil, &types.TransactionCanceledException{}),
		api.EXPECT().GetItem(gomock.Any(), gomock.Any()).Return(matchOutput(t, m), nil),
		api.EXPECT().TransactWriteItems(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
				require.Len(t, in.TransactItems, 2)
				assert.Equal(t, "#version = :version", aws.ToString(in.TransactItems[0].Put.ConditionExpression))
				assert.Equal(t, "test_MatchMessages", aws.ToString(in.TransactItems[1].Put.TableName))
				return &dynamodb.TransactWriteItemsOutput{}, nil
			}),
	)

	calls := 0
	got, err := s.UpdateMatch(context.Background(), "m1", func(m *models.Match) (*store.MatchUpdate, error) {
		calls++
		m.RevealRequestedBy = "alice"
		return &store.MatchUpdate{Message: &models.Message{ID: "msg", MatchID: "m1", Timestamp: t0}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, "alice", got.RevealRequestedBy)
}

func TestUpdateMatchClearsOnlyPointersAtThisMatch(t *testing.T) {
	s, api := newTestStore(t)
	m := testMatch()

	pointer := func(matchID string) *dynamodb.GetItemOutput {
		item, err := attributevalue.MarshalMap(pointerItem{UserID: "x", CurrentMatchID: matchID})
		require.NoError(t, err)
		return &dynamodb.GetItemOutput{Item: item}
	}
	gomock.InOrder(
		api.EXPECT().GetItem(gomock.Any(), gomock.Any()).Return(matchOutput(t, m), nil),
		api.EXPECT().GetItem(gomock.Any(), gomock.Any()).Return(pointer("m1"), nil),
		api.EXPECT().GetItem(gomock.Any(), gomock.Any()).Return(pointer("other"), nil),
		api.EXPECT().TransactWriteItems(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
				require.Len(t, in.TransactItems, 2)
				assert.Equal(t, "REMOVE currentMatchId", aws.ToString(in.TransactItems[1].Update.UpdateExpression))
				return &dynamodb.TransactWriteItemsOutput{}, nil
			}),
	)

	_, err := s.UpdateMatch(context.Background(), "m1", func(m *models.Match) (*store.MatchUpdate, error) {
		m.Status = models.StatusArchived
		return &store.MatchUpdate{ClearPointers: true}, nil
	})
	require.NoError(t, err)
}

func TestGetMatchNotFound(t *testing.T) {
	s, api := newTestStore(t)
	api.EXPECT().GetItem(gomock.Any(), gomock.Any()).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := s.GetMatch(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListMessagesReturnsOldestFirst(t *testing.T) {
	s, api := newTestStore(t)
	var items []map[string]types.AttributeValue
	for i, id := range []string{"c", "b", "a"} {
		msg := &models.Message{ID: id, MatchID: "m1", Type: models.MessageTypeText, Timestamp: t0.Add(time.Duration(3-i) * time.Second)}
		item, err := attributevalue.MarshalMap(toMessageItem(msg))
		require.NoError(t, err)
		items = append(items, item)
	}
	api.EXPECT().Query(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			assert.False(t, aws.ToBool(in.ScanIndexForward))
			return &dynamodb.QueryOutput{Items: items}, nil
		})

	msgs, err := s.ListMessages(context.Background(), "m1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}
