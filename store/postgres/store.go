// Package postgres implements store.Store on PostgreSQL through bun. Each
// multi-row mutation runs in one transaction that locks the rows it
// guards with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"blindshake_server/models"
	"blindshake_server/store"
)

type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, errors.Wrap(err, "postgresStore.Open.Ping")
	}
	return New(bun.NewDB(sqldb, pgdialect.New()), logger), nil
}

func New(db *bun.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// CreateSchema creates the tables and indexes the store queries.
func (s *Store) CreateSchema(ctx context.Context) error {
	tables := []any{
		(*seekerRecord)(nil),
		(*matchRecord)(nil),
		(*messageRecord)(nil),
		(*pointerRecord)(nil),
	}
	for _, t := range tables {
		if _, err := s.db.NewCreateTable().Model(t).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrapf(err, "postgresStore.CreateSchema(%T)", t)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*seekerRecord)(nil), "seekers_geocell_idx", []string{"geocell text_pattern_ops"}},
		{(*seekerRecord)(nil), "seekers_expires_at_idx", []string{"expires_at"}},
		{(*matchRecord)(nil), "matches_status_phase_idx", []string{"status", "anonymous_phase_ends"}},
		{(*matchRecord)(nil), "matches_status_archived_idx", []string{"status", "archived_at"}},
		{(*matchRecord)(nil), "matches_user1_idx", []string{"user1_id"}},
		{(*matchRecord)(nil), "matches_user2_idx", []string{"user2_id"}},
		{(*messageRecord)(nil), "match_messages_match_idx", []string{"match_id", "sent_at"}},
	}
	for _, idx := range indexes {
		q := s.db.NewCreateIndex().Model(idx.model).Index(idx.name).IfNotExists()
		for _, c := range idx.columns {
			q = q.ColumnExpr(c)
		}
		if _, err := q.Exec(ctx); err != nil {
			return errors.Wrapf(err, "postgresStore.CreateSchema.Index(%s)", idx.name)
		}
	}
	return nil
}

func (s *Store) PutSeeker(ctx context.Context, seeker *models.Seeker) error {
	_, err := s.db.NewInsert().
		Model(toSeekerRecord(seeker)).
		On("CONFLICT (user_id) DO UPDATE").
		Set("latitude = EXCLUDED.latitude").
		Set("longitude = EXCLUDED.longitude").
		Set("geocell = EXCLUDED.geocell").
		Set("joined_at = EXCLUDED.joined_at").
		Set("expires_at = EXCLUDED.expires_at").
		Set("display_hint = EXCLUDED.display_hint").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "postgresStore.PutSeeker.Upsert")
	}
	return nil
}

func (s *Store) GetSeeker(ctx context.Context, userID string) (*models.Seeker, error) {
	rec := new(seekerRecord)
	err := s.db.NewSelect().Model(rec).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "postgresStore.GetSeeker.Scan")
	}
	seeker := rec.toModel()
	return &seeker, nil
}

func (s *Store) DeleteSeeker(ctx context.Context, userID string) error {
	_, err := s.db.NewDelete().Model((*seekerRecord)(nil)).Where("user_id = ?", userID).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "postgresStore.DeleteSeeker.Delete")
	}
	return nil
}

func (s *Store) SeekersInCell(ctx context.Context, prefix string) ([]models.Seeker, error) {
	var recs []seekerRecord
	err := s.db.NewSelect().Model(&recs).Where("geocell LIKE ?", prefix+"%").Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "postgresStore.SeekersInCell.Scan")
	}
	return seekersToModels(recs), nil
}

func (s *Store) ExpiredSeekers(ctx context.Context, now time.Time, limit int) ([]models.Seeker, error) {
	var recs []seekerRecord
	q := s.db.NewSelect().Model(&recs).Where("expires_at <= ?", now).Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "postgresStore.ExpiredSeekers.Scan")
	}
	return seekersToModels(recs), nil
}

// DeleteSeekerIfExpired evaluates the expiry inside the DELETE so a
// concurrent refresh wins.
func (s *Store) DeleteSeekerIfExpired(ctx context.Context, userID string, now time.Time) (bool, error) {
	res, err := s.db.NewDelete().
		Model((*seekerRecord)(nil)).
		Where("user_id = ?", userID).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, "postgresStore.DeleteSeekerIfExpired.Delete")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "postgresStore.DeleteSeekerIfExpired.RowsAffected")
	}
	return n == 1, nil
}

func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Lock both pool rows in a fixed order; a concurrent pairing that
		// wants either of them waits here and then finds it gone.
		var seekers []seekerRecord
		err := tx.NewSelect().
			Model(&seekers).
			Where("user_id IN (?)", bun.In(m.Participants)).
			Order("user_id ASC").
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return errors.Wrap(err, "postgresStore.CreateMatch.LockSeekers")
		}
		if len(seekers) != len(m.Participants) {
			return store.ErrConflict
		}
		for _, sk := range seekers {
			if !sk.ExpiresAt.After(m.CreatedAt) {
				return store.ErrConflict
			}
		}

		if _, err := tx.NewInsert().Model(toMatchRecord(m)).Exec(ctx); err != nil {
			if isIntegrityViolation(err) {
				return store.ErrConflict
			}
			return errors.Wrap(err, "postgresStore.CreateMatch.InsertMatch")
		}

		for _, userID := range m.Participants {
			res, err := tx.NewInsert().
				Model(&pointerRecord{UserID: userID, CurrentMatchID: m.ID, LastMatchAt: m.CreatedAt}).
				On("CONFLICT (user_id) DO UPDATE").
				Set("current_match_id = EXCLUDED.current_match_id").
				Set("last_match_at = EXCLUDED.last_match_at").
				Where("mp.current_match_id = ''").
				Exec(ctx)
			if err != nil {
				return errors.Wrap(err, "postgresStore.CreateMatch.SetPointer")
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return store.ErrConflict
			}
		}

		if _, err := tx.NewDelete().
			Model((*seekerRecord)(nil)).
			Where("user_id IN (?)", bun.In(m.Participants)).
			Exec(ctx); err != nil {
			return errors.Wrap(err, "postgresStore.CreateMatch.DeleteSeekers")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	rec := new(matchRecord)
	if err := s.db.NewSelect().Model(rec).Where("id = ?", matchID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "postgresStore.GetMatch.Scan")
	}
	return rec.toModel(), nil
}

// UpdateMatch holds the match row lock for the whole read-modify-write, so
// mutate runs exactly once.
func (s *Store) UpdateMatch(ctx context.Context, matchID string, mutate store.MatchMutator) (*models.Match, error) {
	var result *models.Match
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec := new(matchRecord)
		err := tx.NewSelect().Model(rec).Where("id = ?", matchID).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return errors.Wrap(err, "postgresStore.UpdateMatch.Lock")
		}

		current := rec.toModel()
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

		if _, err := tx.NewUpdate().Model(toMatchRecord(working)).WherePK().Exec(ctx); err != nil {
			return errors.Wrap(err, "postgresStore.UpdateMatch.Update")
		}
		if update.Message != nil {
			if _, err := tx.NewInsert().Model(toMessageRecord(update.Message)).Exec(ctx); err != nil {
				return errors.Wrap(err, "postgresStore.UpdateMatch.InsertMessage")
			}
		}
		if update.ClearPointers {
			_, err := tx.NewUpdate().
				Model((*pointerRecord)(nil)).
				Set("current_match_id = ''").
				Where("user_id IN (?)", bun.In(working.Participants)).
				Where("current_match_id = ?", matchID).
				Exec(ctx)
			if err != nil {
				return errors.Wrap(err, "postgresStore.UpdateMatch.ClearPointers")
			}
		}
		result = working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CurrentMatchID(ctx context.Context, userID string) (string, error) {
	rec := new(pointerRecord)
	if err := s.db.NewSelect().Model(rec).Where("user_id = ?", userID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", errors.Wrap(err, "postgresStore.CurrentMatchID.Scan")
	}
	return rec.CurrentMatchID, nil
}

func (s *Store) AnonymousMatchesEndingBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error) {
	var recs []matchRecord
	q := s.db.NewSelect().
		Model(&recs).
		Where("status = ?", models.StatusAnonymous).
		Where("anonymous_phase_ends <= ?", t).
		Order("anonymous_phase_ends ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "postgresStore.AnonymousMatchesEndingBefore.Scan")
	}
	return matchesToModels(recs), nil
}

func (s *Store) ArchivedMatchesBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error) {
	var recs []matchRecord
	q := s.db.NewSelect().
		Model(&recs).
		Where("status = ?", models.StatusArchived).
		Where("archived_at <= ?", t).
		Order("archived_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "postgresStore.ArchivedMatchesBefore.Scan")
	}
	return matchesToModels(recs), nil
}

func (s *Store) DeleteMatch(ctx context.Context, matchID string) (int, error) {
	var removed int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*messageRecord)(nil)).Where("match_id = ?", matchID).Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "postgresStore.DeleteMatch.Messages")
		}
		n, _ := res.RowsAffected()
		removed = int(n)

		res, err = tx.NewDelete().Model((*matchRecord)(nil)).Where("id = ?", matchID).Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "postgresStore.DeleteMatch.Match")
		}
		if n, _ := res.RowsAffected(); n == 0 {
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
	var recs []messageRecord
	q := s.db.NewSelect().
		Model(&recs).
		Where("match_id = ?", matchID).
		Order("sent_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "postgresStore.ListMessages.Scan")
	}
	out := make([]models.Message, len(recs))
	for i := range recs {
		out[len(recs)-1-i] = recs[i].toModel()
	}
	return out, nil
}

func (s *Store) MatchesForUser(ctx context.Context, userID string) ([]models.Match, error) {
	var recs []matchRecord
	err := s.db.NewSelect().
		Model(&recs).
		WhereOr("user1_id = ?", userID).
		WhereOr("user2_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "postgresStore.MatchesForUser.Scan")
	}
	return matchesToModels(recs), nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func isIntegrityViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.IntegrityViolation()
}

func seekersToModels(recs []seekerRecord) []models.Seeker {
	out := make([]models.Seeker, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toModel())
	}
	return out
}

func matchesToModels(recs []matchRecord) []models.Match {
	out := make([]models.Match, 0, len(recs))
	for i := range recs {
		out = append(out, *recs[i].toModel())
	}
	return out
}
