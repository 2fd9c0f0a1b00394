package controllers

import (
	"context"
	"net/http"

	"blindshake_server/apperrors"
	"blindshake_server/middleware"
	"blindshake_server/models"
	"blindshake_server/services"
)

// Shaker is the shake entry point the controller drives.
type Shaker interface {
	StartSeeking(ctx context.Context, userID string, loc models.Location) (*services.SeekResult, error)
	StopSeeking(ctx context.Context, userID string) error
}

// ShakeController handles entering and leaving the matching pool.
type ShakeController struct {
	Shake Shaker
}

func NewShakeController(shake Shaker) *ShakeController {
	return &ShakeController{Shake: shake}
}

type startSeekingRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// StartSeeking registers the caller and returns a match when one formed.
func (sc *ShakeController) StartSeeking(w http.ResponseWriter, r *http.Request) {
	var req startSeekingRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		WriteError(w, apperrors.ErrInvalidLocation)
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	loc := models.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	result, err := sc.Shake.StartSeeking(r.Context(), userID, loc)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, result)
}

// StopSeeking removes the caller from the pool.
func (sc *ShakeController) StopSeeking(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if err := sc.Shake.StopSeeking(r.Context(), userID); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
}
