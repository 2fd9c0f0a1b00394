package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"blindshake_server/apperrors"
	"blindshake_server/models"
	"blindshake_server/store/dynamo"
	"blindshake_server/utils"
)

// DynamoProfileDirectory reads profiles from the UserProfiles table and
// writes computed stats back onto them.
type DynamoProfileDirectory struct {
	Dynamo *dynamo.DynamoService
	Table  string
	Logger *slog.Logger
}

func NewDynamoProfileDirectory(ds *dynamo.DynamoService, table string, logger *slog.Logger) *DynamoProfileDirectory {
	if table == "" {
		table = models.UserProfilesTable
	}
	return &DynamoProfileDirectory{Dynamo: ds, Table: table, Logger: logger}
}

func profileKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
}

// GetProfile retrieves a user profile by ID
func (d *DynamoProfileDirectory) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	item, err := d.Dynamo.GetItem(ctx, d.Table, profileKey(userID))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.ErrProfileNotFound
	}

	photo := utils.ExtractString(item, "photoURL")
	if photo == "" {
		photo = utils.ExtractFirstPhoto(item, "photos")
	}
	return &models.UserProfile{
		UserID:      userID,
		DisplayName: utils.FirstString(item, "displayName", "name"),
		PhotoURL:    photo,
	}, nil
}

func (d *DynamoProfileDirectory) ListUserIDs(ctx context.Context) ([]string, error) {
	items, err := d.Dynamo.ScanAll(ctx, &dynamodb.ScanInput{
		TableName:            aws.String(d.Table),
		ProjectionExpression: aws.String("userId"),
	}, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if id := utils.ExtractString(item, "userId"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type statsItem struct {
	TotalMatches    int   `dynamodbav:"totalMatches"`
	RevealedMatches int   `dynamodbav:"revealedMatches"`
	ArchivedMatches int   `dynamodbav:"archivedMatches"`
	UpdatedAt       int64 `dynamodbav:"updatedAt"`
}

func (d *DynamoProfileDirectory) UpdateStats(ctx context.Context, userID string, stats models.UserStats) error {
	av, err := attributevalue.Marshal(statsItem{
		TotalMatches:    stats.TotalMatches,
		RevealedMatches: stats.RevealedMatches,
		ArchivedMatches: stats.ArchivedMatches,
		UpdatedAt:       stats.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal stats")
	}
	return d.Dynamo.UpdateItem(ctx, d.Table,
		"SET #stats = :stats",
		profileKey(userID),
		map[string]types.AttributeValue{":stats": av},
		map[string]string{"#stats": "stats"},
	)
}

// MemoryProfileDirectory is an in-process ProfileDirectory for local runs
// and tests.
type MemoryProfileDirectory struct {
	mu       sync.RWMutex
	profiles map[string]models.UserProfile
	stats    map[string]models.UserStats
}

func NewMemoryProfileDirectory(profiles ...models.UserProfile) *MemoryProfileDirectory {
	d := &MemoryProfileDirectory{
		profiles: make(map[string]models.UserProfile),
		stats:    make(map[string]models.UserStats),
	}
	for _, p := range profiles {
		d.profiles[p.UserID] = p
	}
	return d
}

func (d *MemoryProfileDirectory) PutProfile(p models.UserProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.UserID] = p
}

func (d *MemoryProfileDirectory) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[userID]
	if !ok {
		return nil, apperrors.ErrProfileNotFound
	}
	return &p, nil
}

func (d *MemoryProfileDirectory) ListUserIDs(context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.profiles))
	for id := range d.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *MemoryProfileDirectory) UpdateStats(_ context.Context, userID string, stats models.UserStats) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats[userID] = stats
	return nil
}

// Stats returns the last stats written for userID.
func (d *MemoryProfileDirectory) Stats(userID string) (models.UserStats, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.stats[userID]
	return s, ok
}
