// Package handler exposes the standalone duplicate-check endpoints used by
// field officers before submitting a record for ingestion.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"registro/internal/dedupe"
	"registro/internal/dedupe/models"
	id "registro/pkg/domain"
	dErrors "registro/pkg/domain-errors"
	"registro/pkg/platform/httputil"
	"registro/pkg/requestcontext"
)

// Service defines the dedupe operations the handler needs.
type Service interface {
	Check(ctx context.Context, req dedupe.CheckRequest) (dedupe.CheckResult, error)
	Stats(ctx context.Context) (dedupe.Stats, error)
}

// Handler handles duplicate-check endpoints.
type Handler struct {
	dedupe Service
	logger *slog.Logger
}

// New creates a new dedupe Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{dedupe: service, logger: logger}
}

// Register registers the dedupe routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/dedupe/check", h.handleCheck)
	r.Get("/dedupe/stats", h.handleStats)
}

// checkRequest mirrors the wire contract consumed by upstream source systems.
type checkRequest struct {
	EntityType        string         `json:"entityType"`
	MatchingAlgorithm string         `json:"matchingAlgorithm"`
	MatchThreshold    float64        `json:"matchThreshold"`
	EntityData        map[string]any `json:"entityData"`
}

type checkMatch struct {
	CandidateID   string              `json:"candidateId"`
	Confidence    float64             `json:"confidence"`
	MatchedFields []models.FieldScore `json:"matchedFields"`
}

type checkResponse struct {
	EntityType        string       `json:"entityType"`
	MatchingAlgorithm string       `json:"matchingAlgorithm"`
	MatchThreshold    float64      `json:"matchThreshold"`
	TotalMatches      int          `json:"totalMatches"`
	Matches           []checkMatch `json:"matches"`
	ProcessedAt       string       `json:"processedAt"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[checkRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.MatchThreshold < 0 || req.MatchThreshold > 1 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "matchThreshold must be within [0,1]"))
		return
	}

	result, err := h.dedupe.Check(ctx, dedupe.CheckRequest{
		Record:    models.RecordFromPayload(id.EntityType(req.EntityType), req.EntityData),
		Algorithm: models.Algorithm(req.MatchingAlgorithm),
		Threshold: req.MatchThreshold,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "duplicate check failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	resp := checkResponse{
		EntityType:        req.EntityType,
		MatchingAlgorithm: string(result.Algorithm),
		MatchThreshold:    result.Threshold,
		TotalMatches:      len(result.Matches),
		Matches:           make([]checkMatch, 0, len(result.Matches)),
		ProcessedAt:       result.ProcessedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	for _, m := range result.Matches {
		resp.Matches = append(resp.Matches, checkMatch{
			CandidateID:   m.EntityID.String(),
			Confidence:    m.Confidence,
			MatchedFields: m.FieldScores,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.dedupe.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read dedupe stats",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to read stats"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
