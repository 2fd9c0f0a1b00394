package services

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blindshake_server/apperrors"
	"blindshake_server/models"
	"blindshake_server/store/dynamo"
	dynamomocks "blindshake_server/store/dynamo/mocks"
)

func newDynamoDirectory(t *testing.T) (*DynamoProfileDirectory, *dynamomocks.MockAPI) {
	ctrl := gomock.NewController(t)
	api := dynamomocks.NewMockAPI(ctrl)
	ds := &dynamo.DynamoService{Client: api, Logger: discardLogger()}
	return NewDynamoProfileDirectory(ds, "", discardLogger()), api
}

func TestDynamoProfileDirectory_GetProfile(t *testing.T) {
	ctx := context.Background()
	dir, api := newDynamoDirectory(t)

	api.EXPECT().GetItem(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			assert.Equal(t, models.UserProfilesTable, aws.ToString(in.TableName))
			assert.Equal(t, &types.AttributeValueMemberS{Value: "alice"}, in.Key["userId"])
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				"userId": &types.AttributeValueMemberS{Value: "alice"},
				"name":   &types.AttributeValueMemberS{Value: "Alice"},
				"photos": &types.AttributeValueMemberL{Value: []types.AttributeValue{
					&types.AttributeValueMemberS{Value: "profile-pics/alice-1.jpg"},
					&types.AttributeValueMemberS{Value: "profile-pics/alice-2.jpg"},
				}},
			}}, nil
		})

	p, err := dir.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &models.UserProfile{
		UserID:      "alice",
		DisplayName: "Alice",
		PhotoURL:    "profile-pics/alice-1.jpg",
	}, p)
}

func TestDynamoProfileDirectory_GetProfileMissing(t *testing.T) {
	dir, api := newDynamoDirectory(t)
	api.EXPECT().GetItem(gomock.Any(), gomock.Any()).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := dir.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrProfileNotFound)
}

func TestDynamoProfileDirectory_ListUserIDsPages(t *testing.T) {
	dir, api := newDynamoDirectory(t)
	page := func(ids []string, last bool) *dynamodb.ScanOutput {
		out := &dynamodb.ScanOutput{}
		for _, id := range ids {
			out.Items = append(out.Items, map[string]types.AttributeValue{
				"userId": &types.AttributeValueMemberS{Value: id},
			})
		}
		if !last {
			out.LastEvaluatedKey = out.Items[len(out.Items)-1]
		}
		return out
	}
	gomock.InOrder(
		api.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(page([]string{"a", "b"}, false), nil),
		api.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(page([]string{"c"}, true), nil),
	)

	ids, err := dir.ListUserIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestDynamoProfileDirectory_UpdateStats(t *testing.T) {
	dir, api := newDynamoDirectory(t)
	at := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	api.EXPECT().UpdateItem(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			assert.Equal(t, "SET #stats = :stats", aws.ToString(in.UpdateExpression))
			stats, ok := in.ExpressionAttributeValues[":stats"].(*types.AttributeValueMemberM)
			require.True(t, ok)
			assert.Equal(t, &types.AttributeValueMemberN{Value: "4"}, stats.Value["totalMatches"])
			assert.Equal(t, &types.AttributeValueMemberN{Value: "1"}, stats.Value["revealedMatches"])
			return &dynamodb.UpdateItemOutput{}, nil
		})

	err := dir.UpdateStats(context.Background(), "alice", models.UserStats{
		TotalMatches:    4,
		RevealedMatches: 1,
		ArchivedMatches: 3,
		UpdatedAt:       at,
	})
	require.NoError(t, err)
}
