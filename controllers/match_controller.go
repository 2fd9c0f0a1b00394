package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"blindshake_server/apperrors"
	"blindshake_server/middleware"
	"blindshake_server/models"
	"blindshake_server/services"
)

// MatchLifecycle is the set of match operations exposed over HTTP.
type MatchLifecycle interface {
	GetMatch(ctx context.Context, userID, matchID string) (*services.MatchView, error)
	ListMessages(ctx context.Context, userID, matchID string, limit int) ([]models.Message, error)
	SendMessage(ctx context.Context, userID, matchID, content, msgType string) (*models.Message, error)
	RequestReveal(ctx context.Context, userID, matchID string) (*services.RevealResult, error)
	DeclineReveal(ctx context.Context, userID, matchID string) error
	LeaveMatch(ctx context.Context, userID, matchID string) error
}

// MatchController handles HTTP requests for a single match.
type MatchController struct {
	Lifecycle MatchLifecycle
}

// NewMatchController creates a new MatchController instance
func NewMatchController(lifecycle MatchLifecycle) *MatchController {
	return &MatchController{Lifecycle: lifecycle}
}

func caller(r *http.Request) (userID, matchID string) {
	return middleware.UserIDFromContext(r.Context()), mux.Vars(r)["matchId"]
}

func (mc *MatchController) GetMatch(w http.ResponseWriter, r *http.Request) {
	userID, matchID := caller(r)
	view, err := mc.Lifecycle.GetMatch(r.Context(), userID, matchID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, view)
}

// ListMessages returns the latest messages, oldest first. limit defaults
// server-side when absent.
func (mc *MatchController) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, matchID := caller(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, apperrors.InvalidArg("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	messages, err := mc.Lifecycle.ListMessages(r.Context(), userID, matchID, limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

type sendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

func (mc *MatchController) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, matchID := caller(r)
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	msg, err := mc.Lifecycle.SendMessage(r.Context(), userID, matchID, req.Content, req.Type)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"messageId": msg.ID,
		"message":   msg,
	})
}

func (mc *MatchController) RequestReveal(w http.ResponseWriter, r *http.Request) {
	userID, matchID := caller(r)
	result, err := mc.Lifecycle.RequestReveal(r.Context(), userID, matchID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"revealed":        result.Revealed,
		"waitingForOther": result.WaitingForOther,
	})
}

func (mc *MatchController) DeclineReveal(w http.ResponseWriter, r *http.Request) {
	userID, matchID := caller(r)
	if err := mc.Lifecycle.DeclineReveal(r.Context(), userID, matchID); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
}

func (mc *MatchController) LeaveMatch(w http.ResponseWriter, r *http.Request) {
	userID, matchID := caller(r)
	if err := mc.Lifecycle.LeaveMatch(r.Context(), userID, matchID); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
}
