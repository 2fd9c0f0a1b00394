// Package mongo implements store.Store on MongoDB. Multi-document
// mutations run inside session transactions, which need a replica set.
package mongo

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blindshake_server/models"
	"blindshake_server/store"
)

type Store struct {
	client   *mongo.Client
	seekers  *mongo.Collection
	matches  *mongo.Collection
	messages *mongo.Collection
	pointers *mongo.Collection
	logger   *slog.Logger
}

var _ store.Store = (*Store)(nil)

// errAbort carries a guard failure out of a transaction callback.
var errAbort = errors.New("mongoStore: transaction guard failed")

// Open connects to uri and pings the server before returning.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.Open.Connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongoStore.Open.Ping")
	}
	return New(client, database, logger), nil
}

func New(client *mongo.Client, database string, logger *slog.Logger) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		seekers:  db.Collection(seekersCollection),
		matches:  db.Collection(matchesCollection),
		messages: db.Collection(messagesCollection),
		pointers: db.Collection(pointersCollection),
		logger:   logger,
	}
}

// EnsureIndexes creates the indexes the store queries.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.seekers: {
			{Keys: bson.D{{Key: "geocell", Value: 1}}},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
		},
		s.matches: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "anonymousPhaseEnds", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "archivedAt", Value: 1}}},
			{Keys: bson.D{{Key: "participants", Value: 1}}},
		},
		s.messages: {
			{Keys: bson.D{{Key: "matchId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}
	for coll, indexes := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
			return errors.Wrapf(err, "mongoStore.EnsureIndexes(%s)", coll.Name())
		}
	}
	return nil
}

func (s *Store) PutSeeker(ctx context.Context, seeker *models.Seeker) error {
	doc := toSeekerDoc(seeker)
	_, err := s.seekers.ReplaceOne(ctx, bson.M{"_id": doc.UserID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "mongoStore.PutSeeker.Replace")
	}
	return nil
}

func (s *Store) GetSeeker(ctx context.Context, userID string) (*models.Seeker, error) {
	var doc seekerDoc
	if err := s.seekers.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "mongoStore.GetSeeker.FindOne")
	}
	seeker := doc.toModel()
	return &seeker, nil
}

func (s *Store) DeleteSeeker(ctx context.Context, userID string) error {
	if _, err := s.seekers.DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return errors.Wrap(err, "mongoStore.DeleteSeeker.DeleteOne")
	}
	return nil
}

func (s *Store) SeekersInCell(ctx context.Context, prefix string) ([]models.Seeker, error) {
	filter := bson.M{"geocell": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)}}
	return s.findSeekers(ctx, filter, nil)
}

func (s *Store) ExpiredSeekers(ctx context.Context, now time.Time, limit int) ([]models.Seeker, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findSeekers(ctx, bson.M{"expiresAt": bson.M{"$lte": now}}, opts)
}

func (s *Store) findSeekers(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Seeker, error) {
	cursor, err := s.seekers.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.findSeekers.Find")
	}
	var docs []seekerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "mongoStore.findSeekers.Decode")
	}
	out := make([]models.Seeker, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

// DeleteSeekerIfExpired filters on the stored expiry so the delete is a
// single atomic document operation.
func (s *Store) DeleteSeekerIfExpired(ctx context.Context, userID string, now time.Time) (bool, error) {
	res, err := s.seekers.DeleteOne(ctx, bson.M{"_id": userID, "expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return false, errors.Wrap(err, "mongoStore.DeleteSeekerIfExpired.DeleteOne")
	}
	return res.DeletedCount == 1, nil
}

func (s *Store) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "mongoStore.StartSession")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	err := s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := s.seekers.DeleteMany(sc, bson.M{
			"_id":       bson.M{"$in": m.Participants},
			"expiresAt": bson.M{"$gt": m.CreatedAt},
		})
		if err != nil {
			return errors.Wrap(err, "mongoStore.CreateMatch.DeleteSeekers")
		}
		if res.DeletedCount != int64(len(m.Participants)) {
			return errAbort
		}

		if _, err := s.matches.InsertOne(sc, toMatchDoc(m)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return errAbort
			}
			return errors.Wrap(err, "mongoStore.CreateMatch.InsertMatch")
		}

		// A live pointer fails the filter, so the upsert collides on _id.
		for _, userID := range m.Participants {
			_, err := s.pointers.UpdateOne(sc,
				bson.M{"_id": userID, "$or": bson.A{
					bson.M{"currentMatchId": bson.M{"$exists": false}},
					bson.M{"currentMatchId": ""},
				}},
				bson.M{"$set": bson.M{"currentMatchId": m.ID, "lastMatchAt": m.CreatedAt}},
				options.Update().SetUpsert(true),
			)
			if err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return errAbort
				}
				return errors.Wrap(err, "mongoStore.CreateMatch.SetPointer")
			}
		}
		return nil
	})
	if errors.Is(err, errAbort) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	return s.findMatch(ctx, matchID)
}

func (s *Store) findMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var doc matchDoc
	if err := s.matches.FindOne(ctx, bson.M{"_id": matchID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "mongoStore.GetMatch.FindOne")
	}
	return doc.toModel(), nil
}

// UpdateMatch relies on the transaction's write-conflict retry: a
// concurrent writer aborts this attempt and WithTransaction runs the
// callback again on fresh state.
func (s *Store) UpdateMatch(ctx context.Context, matchID string, mutate store.MatchMutator) (*models.Match, error) {
	var result *models.Match
	err := s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		current, err := s.findMatch(sc, matchID)
		if err != nil {
			return err
		}
		working := current.Clone()
		update, err := mutate(working)
		if err != nil {
			return err
		}
		if update == nil {
			result = current
			return nil
		}
		working.Version = current.Version + 1

		res, err := s.matches.ReplaceOne(sc,
			bson.M{"_id": matchID, "version": current.Version},
			toMatchDoc(working))
		if err != nil {
			return errors.Wrap(err, "mongoStore.UpdateMatch.Replace")
		}
		if res.MatchedCount != 1 {
			return errAbort
		}
		if update.Message != nil {
			if _, err := s.messages.InsertOne(sc, toMessageDoc(update.Message)); err != nil {
				return errors.Wrap(err, "mongoStore.UpdateMatch.InsertMessage")
			}
		}
		if update.ClearPointers {
			_, err := s.pointers.UpdateMany(sc,
				bson.M{"_id": bson.M{"$in": working.Participants}, "currentMatchId": matchID},
				bson.M{"$set": bson.M{"currentMatchId": ""}})
			if err != nil {
				return errors.Wrap(err, "mongoStore.UpdateMatch.ClearPointers")
			}
		}
		result = working
		return nil
	})
	if errors.Is(err, errAbort) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CurrentMatchID(ctx context.Context, userID string) (string, error) {
	var doc struct {
		CurrentMatchID string `bson:"currentMatchId"`
	}
	if err := s.pointers.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", nil
		}
		return "", errors.Wrap(err, "mongoStore.CurrentMatchID.FindOne")
	}
	return doc.CurrentMatchID, nil
}

func (s *Store) AnonymousMatchesEndingBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error) {
	return s.findMatches(ctx,
		bson.M{"status": models.StatusAnonymous, "anonymousPhaseEnds": bson.M{"$lte": t}},
		bson.D{{Key: "anonymousPhaseEnds", Value: 1}}, limit)
}

func (s *Store) ArchivedMatchesBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error) {
	return s.findMatches(ctx,
		bson.M{"status": models.StatusArchived, "archivedAt": bson.M{"$lte": t}},
		bson.D{{Key: "archivedAt", Value: 1}}, limit)
}

func (s *Store) MatchesForUser(ctx context.Context, userID string) ([]models.Match, error) {
	return s.findMatches(ctx, bson.M{"participants": userID}, bson.D{{Key: "createdAt", Value: 1}}, 0)
}

func (s *Store) findMatches(ctx context.Context, filter bson.M, sort bson.D, limit int) ([]models.Match, error) {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.matches.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.findMatches.Find")
	}
	var docs []matchDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "mongoStore.findMatches.Decode")
	}
	out := make([]models.Match, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d.toModel())
	}
	return out, nil
}

func (s *Store) DeleteMatch(ctx context.Context, matchID string) (int, error) {
	var removed int
	err := s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := s.messages.DeleteMany(sc, bson.M{"matchId": matchID})
		if err != nil {
			return errors.Wrap(err, "mongoStore.DeleteMatch.Messages")
		}
		removed = int(res.DeletedCount)

		matchRes, err := s.matches.DeleteOne(sc, bson.M{"_id": matchID})
		if err != nil {
			return errors.Wrap(err, "mongoStore.DeleteMatch.Match")
		}
		if matchRes.DeletedCount == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) ListMessages(ctx context.Context, matchID string, limit int) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.messages.Find(ctx, bson.M{"matchId": matchID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.ListMessages.Find")
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "mongoStore.ListMessages.Decode")
	}
	out := make([]models.Message, len(docs))
	for i, d := range docs {
		out[len(docs)-1-i] = d.toModel()
	}
	return out, nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return errors.Wrap(err, "mongoStore.Close")
	}
	return nil
}
