package socket

import (
	"context"
	"log/slog"
	"strings"

	socketio "github.com/googollee/go-socket.io"
	"github.com/pkg/errors"

	"blindshake_server/models"
	"blindshake_server/store"
)

const namespace = "/"

// Event names pushed to clients.
const (
	EventNewMessage   = "newMessage"
	EventMatchUpdated = "matchUpdated"
)

// TokenParser resolves a bearer token into a user id.
type TokenParser interface {
	ParseToken(token string) (string, error)
}

type broadcaster interface {
	BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool
}

// Server serves socket.io clients. Each match is a room named after its
// id; only participants may join it.
type Server struct {
	io      *socketio.Server
	rooms   broadcaster
	tokens  TokenParser
	matches store.MatchStore
	logger  *slog.Logger
}

// NewSocketServer initializes and returns a new Socket.IO server
func NewSocketServer(tokens TokenParser, matches store.MatchStore, logger *slog.Logger) *Server {
	srv := socketio.NewServer(nil)
	s := &Server{io: srv, rooms: srv, tokens: tokens, matches: matches, logger: logger}

	srv.OnConnect(namespace, func(c socketio.Conn) error {
		userID, err := s.authenticate(c)
		if err != nil {
			s.logger.Warn("socket rejected", "id", c.ID(), "error", err)
			return err
		}
		c.SetContext(userID)
		s.logger.Debug("socket connected", "id", c.ID(), "userId", userID)
		return nil
	})

	srv.OnEvent(namespace, "join", func(c socketio.Conn, matchID string) {
		userID, _ := c.Context().(string)
		if err := s.authorizeJoin(context.Background(), userID, matchID); err != nil {
			s.logger.Warn("join rejected", "id", c.ID(), "userId", userID, "matchId", matchID, "error", err)
			c.Emit("error", err.Error())
			return
		}
		c.Join(matchID)
		s.logger.Debug("socket joined match", "id", c.ID(), "userId", userID, "matchId", matchID)
	})

	srv.OnEvent(namespace, "leave", func(c socketio.Conn, matchID string) {
		c.Leave(matchID)
	})

	srv.OnError(namespace, func(c socketio.Conn, err error) {
		s.logger.Warn("socket error", "error", err)
	})

	srv.OnDisconnect(namespace, func(c socketio.Conn, reason string) {
		s.logger.Debug("socket disconnected", "id", c.ID(), "reason", reason)
	})

	return s
}

// Handler is mounted at /socket.io/.
func (s *Server) Handler() *socketio.Server {
	return s.io
}

func (s *Server) Serve() error {
	return s.io.Serve()
}

func (s *Server) Close() error {
	return s.io.Close()
}

// authenticate reads the token from the "token" query parameter or the
// Authorization header of the handshake.
func (s *Server) authenticate(c socketio.Conn) (string, error) {
	u := c.URL()
	token := u.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(c.RemoteHeader().Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", errors.New("missing token")
	}
	return s.tokens.ParseToken(token)
}

func (s *Server) authorizeJoin(ctx context.Context, userID, matchID string) error {
	if userID == "" {
		return errors.New("unauthenticated")
	}
	if matchID == "" {
		return errors.New("matchId is required")
	}
	m, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return errors.Wrap(err, "failed to load match")
	}
	if !m.HasParticipant(userID) {
		return errors.New("not a participant")
	}
	return nil
}

// MessageAppended pushes a committed message to its match room.
func (s *Server) MessageAppended(_ context.Context, msg *models.Message) error {
	s.rooms.BroadcastToRoom(namespace, msg.MatchID, EventNewMessage, msg)
	return nil
}

// MatchStatus is the match change pushed to the room. It never carries
// participant ids.
type MatchStatus struct {
	MatchID        string `json:"matchId"`
	Status         string `json:"status"`
	ArchivedReason string `json:"archivedReason,omitempty"`
}

// MatchUpdated pushes a status change to the match room.
func (s *Server) MatchUpdated(_ context.Context, m *models.Match) error {
	s.rooms.BroadcastToRoom(namespace, m.ID, EventMatchUpdated, MatchStatus{
		MatchID:        m.ID,
		Status:         m.Status,
		ArchivedReason: m.ArchivedReason,
	})
	return nil
}
