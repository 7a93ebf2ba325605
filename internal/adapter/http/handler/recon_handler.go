package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/phygrid/wiserecon/internal/usecase"
)

// ReconHandler exposes manual triggers for the pipeline stages.
type ReconHandler struct {
	sync  *usecase.SyncUseCase
	recon *usecase.ReconcileUseCase
	learn *usecase.LearnUseCase
}

// NewReconHandler creates a new ReconHandler.
func NewReconHandler(sync *usecase.SyncUseCase, recon *usecase.ReconcileUseCase, learn *usecase.LearnUseCase) *ReconHandler {
	return &ReconHandler{sync: sync, recon: recon, learn: learn}
}

type runRequest struct {
	Entity    string `json:"entity,omitempty"`
	ProfileID int64  `json:"profile_id,omitempty"`
}

// RunSync triggers ingestion for one profile or all of them.
func (h *ReconHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if req.ProfileID != 0 {
		res, err := h.sync.SyncProfile(r.Context(), req.ProfileID)
		if err != nil {
			writeError(w, http.StatusBadGateway, "sync failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	res, err := h.sync.SyncAll(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "sync failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RunReconcile triggers a scoring batch for one entity or all of them.
func (h *ReconHandler) RunReconcile(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if req.Entity != "" {
		res, err := h.recon.RunBatch(r.Context(), req.Entity)
		if err != nil {
			if errors.Is(err, usecase.ErrBatchInFlight) {
				writeError(w, http.StatusConflict, "batch already running", err.Error())
				return
			}
			writeError(w, http.StatusBadGateway, "reconcile failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	res, err := h.recon.RunAll(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "reconcile failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RunLearn triggers one learning pass over reviewed suggestions.
func (h *ReconHandler) RunLearn(w http.ResponseWriter, r *http.Request) {
	res, err := h.learn.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "learning pass failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeOptionalBody(r *http.Request, out any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(out)
}
