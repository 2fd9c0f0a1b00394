package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"blindshake_server/geo"
	"blindshake_server/models"
)

// MemoryStore is an in-process Store. A single lock serialises every
// call, which gives each operation the isolation the contract requires.
type MemoryStore struct {
	mu       sync.Mutex
	seekers  map[string]models.Seeker
	matches  map[string]*models.Match
	messages map[string][]models.Message
	pointers map[string]models.MatchPointer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seekers:  make(map[string]models.Seeker),
		matches:  make(map[string]*models.Match),
		messages: make(map[string][]models.Message),
		pointers: make(map[string]models.MatchPointer),
	}
}

func (s *MemoryStore) PutSeeker(ctx context.Context, seeker *models.Seeker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekers[seeker.UserID] = *seeker
	return nil
}

func (s *MemoryStore) GetSeeker(ctx context.Context, userID string) (*models.Seeker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seeker, ok := s.seekers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &seeker, nil
}

func (s *MemoryStore) DeleteSeeker(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seekers, userID)
	return nil
}

func (s *MemoryStore) SeekersInCell(ctx context.Context, prefix string) ([]models.Seeker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Seeker
	for _, seeker := range s.seekers {
		if geo.InCell(seeker.Geocell, prefix) {
			out = append(out, seeker)
		}
	}
	return out, nil
}

func (s *MemoryStore) ExpiredSeekers(ctx context.Context, now time.Time, limit int) ([]models.Seeker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Seeker
	for _, seeker := range s.seekers {
		if seeker.Expired(now) {
			out = append(out, seeker)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteSeekerIfExpired(ctx context.Context, userID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seeker, ok := s.seekers[userID]
	if !ok || !seeker.Expired(now) {
		return false, nil
	}
	delete(s.seekers, userID)
	return true, nil
}

func (s *MemoryStore) CreateMatch(ctx context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.matches[m.ID]; exists {
		return ErrConflict
	}
	for _, userID := range m.Participants {
		seeker, ok := s.seekers[userID]
		if !ok || seeker.Expired(m.CreatedAt) {
			return ErrConflict
		}
		if p, ok := s.pointers[userID]; ok && p.CurrentMatchID != "" {
			return ErrConflict
		}
	}

	s.matches[m.ID] = m.Clone()
	for _, userID := range m.Participants {
		delete(s.seekers, userID)
		s.pointers[userID] = models.MatchPointer{
			UserID:         userID,
			CurrentMatchID: m.ID,
			LastMatchAt:    m.CreatedAt,
		}
	}
	return nil
}

func (s *MemoryStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) UpdateMatch(ctx context.Context, matchID string, mutate MatchMutator) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.matches[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	update, err := mutate(working)
	if err != nil {
		return nil, err
	}
	if update == nil {
		return current.Clone(), nil
	}

	working.Version = current.Version + 1
	s.matches[matchID] = working
	if update.Message != nil {
		s.messages[matchID] = append(s.messages[matchID], *update.Message)
	}
	if update.ClearPointers {
		for _, userID := range working.Participants {
			if p, ok := s.pointers[userID]; ok && p.CurrentMatchID == matchID {
				p.CurrentMatchID = ""
				s.pointers[userID] = p
			}
		}
	}
	return working.Clone(), nil
}

func (s *MemoryStore) CurrentMatchID(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointers[userID].CurrentMatchID, nil
}

func (s *MemoryStore) AnonymousMatchesEndingBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if m.Status == models.StatusAnonymous && !m.AnonymousPhaseEnds.After(t) {
			out = append(out, *m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnonymousPhaseEnds.Before(out[j].AnonymousPhaseEnds) })
	return truncateMatches(out, limit), nil
}

func (s *MemoryStore) ArchivedMatchesBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if m.Status == models.StatusArchived && m.ArchivedAt != nil && !m.ArchivedAt.After(t) {
			out = append(out, *m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArchivedAt.Before(*out[j].ArchivedAt) })
	return truncateMatches(out, limit), nil
}

func (s *MemoryStore) DeleteMatch(ctx context.Context, matchID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[matchID]; !ok {
		return 0, ErrNotFound
	}
	n := len(s.messages[matchID])
	delete(s.messages, matchID)
	delete(s.matches, matchID)
	return n, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, matchID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[matchID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message(nil), msgs...), nil
}

func (s *MemoryStore) MatchesForUser(ctx context.Context, userID string) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if m.HasParticipant(userID) {
			out = append(out, *m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func truncateMatches(matches []models.Match, limit int) []models.Match {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}
