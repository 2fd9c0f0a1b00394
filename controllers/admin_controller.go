package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"blindshake_server/apperrors"
	"blindshake_server/services"
)

// SweepRunner runs one housekeeping pass on demand.
type SweepRunner interface {
	RunSweep(ctx context.Context, kind string, dryRun bool) (*services.SweepResult, error)
}

// AdminController exposes operator-only maintenance endpoints.
type AdminController struct {
	Sweeper SweepRunner
}

func NewAdminController(sweeper SweepRunner) *AdminController {
	return &AdminController{Sweeper: sweeper}
}

// RunSweep runs the sweep named in the path. ?dryRun=true previews it.
func (ac *AdminController) RunSweep(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]

	dryRun := false
	if raw := r.URL.Query().Get("dryRun"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, apperrors.InvalidArg("dryRun must be a boolean"))
			return
		}
		dryRun = v
	}

	result, err := ac.Sweeper.RunSweep(r.Context(), kind, dryRun)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, result)
}
