// Package handler exposes the ingestion and review endpoints.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"registro/internal/ingest/models"
	"registro/internal/ingest/review"
	id "registro/pkg/domain"
	dErrors "registro/pkg/domain-errors"
	"registro/pkg/platform/httputil"
	"registro/pkg/platform/sentinel"
	"registro/pkg/requestcontext"
)

// Service defines the ingestion operations the handler needs.
type Service interface {
	IngestOne(ctx context.Context, req models.Request) (models.Ingestion, error)
	IngestBatch(ctx context.Context, batchID string, reqs []models.Request) (models.Ingestion, error)
	GetIngestion(ctx context.Context, ingestionID id.IngestionID) (models.Ingestion, error)
	PendingReviews(ctx context.Context) ([]review.Item, error)
	ApproveReview(ctx context.Context, reviewID id.ReviewID, resolvedBy string) (review.Item, id.EntityID, error)
	RejectReview(ctx context.Context, reviewID id.ReviewID, resolvedBy string) (review.Item, id.EntityID, error)
}

// Handler handles ingestion-related endpoints.
type Handler struct {
	ingest Service
	logger *slog.Logger
}

// New creates a new ingest Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{ingest: service, logger: logger}
}

// Register registers the ingestion routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/ingest", h.handleIngest)
	r.Post("/ingest/batch", h.handleIngestBatch)
	r.Get("/ingest/{ingestionID}", h.handleGetIngestion)
	r.Get("/review", h.handleListReviews)
	r.Post("/review/{reviewID}/approve", h.handleApproveReview)
	r.Post("/review/{reviewID}/reject", h.handleRejectReview)
}

// ingestionRequest mirrors the wire contract consumed from source systems.
type ingestionRequest struct {
	SourceSystem       string         `json:"sourceSystem"`
	DataType           string         `json:"dataType"`
	SubmittedBy        string         `json:"submittedBy"`
	SourceRecordID     string         `json:"sourceRecordId"`
	DataPayload        map[string]any `json:"dataPayload"`
	ValidateOnly       bool           `json:"validateOnly"`
	SkipDuplicateCheck bool           `json:"skipDuplicateCheck"`
}

type batchRequest struct {
	BatchID  string             `json:"batchId"`
	Requests []ingestionRequest `json:"requests"`
}

type ingestionResponse struct {
	IngestionID       string               `json:"ingestionId"`
	BatchID           string               `json:"batchId,omitempty"`
	Status            string               `json:"status"`
	TotalRecords      int                  `json:"totalRecords"`
	SuccessfulRecords int                  `json:"successfulRecords"`
	FailedRecords     int                  `json:"failedRecords"`
	PendingReview     int                  `json:"pendingReview"`
	ValidationErrors  []models.RecordError `json:"validationErrors,omitempty"`
	ProcessedAt       string               `json:"processedAt"`
}

func toResponse(ingestion models.Ingestion) ingestionResponse {
	return ingestionResponse{
		IngestionID:       ingestion.ID.String(),
		BatchID:           ingestion.BatchID,
		Status:            string(ingestion.Status),
		TotalRecords:      ingestion.TotalRecords,
		SuccessfulRecords: ingestion.SuccessfulRecords,
		FailedRecords:     ingestion.FailedRecords,
		PendingReview:     ingestion.PendingReview,
		ValidationErrors:  ingestion.ValidationErrors,
		ProcessedAt:       ingestion.ProcessedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func (h *Handler) toServiceRequest(ctx context.Context, req ingestionRequest) models.Request {
	submittedBy := req.SubmittedBy
	if submittedBy == "" {
		submittedBy = requestcontext.SubmittedBy(ctx)
	}
	return models.Request{
		SourceSystem:       req.SourceSystem,
		DataType:           id.EntityType(req.DataType),
		SubmittedBy:        submittedBy,
		SourceRecordID:     req.SourceRecordID,
		Payload:            req.DataPayload,
		ValidateOnly:       req.ValidateOnly,
		SkipDuplicateCheck: req.SkipDuplicateCheck,
	}
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[ingestionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.SourceSystem == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "sourceSystem is required"))
		return
	}

	ingestion, err := h.ingest.IngestOne(ctx, h.toServiceRequest(ctx, req))
	if err != nil {
		h.logger.ErrorContext(ctx, "ingestion failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(ingestion))
}

func (h *Handler) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[batchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	reqs := make([]models.Request, 0, len(req.Requests))
	for _, record := range req.Requests {
		reqs = append(reqs, h.toServiceRequest(ctx, record))
	}
	ingestion, err := h.ingest.IngestBatch(ctx, req.BatchID, reqs)
	if err != nil {
		h.logger.ErrorContext(ctx, "batch ingestion failed",
			"request_id", requestID,
			"batch_id", req.BatchID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(ingestion))
}

func (h *Handler) handleGetIngestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ingestionID, err := id.ParseIngestionID(chi.URLParam(r, "ingestionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ingestion, err := h.ingest.GetIngestion(ctx, ingestionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "ingestion not found"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(ingestion))
}

func (h *Handler) handleListReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.ingest.PendingReviews(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list pending reviews",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list reviews"))
		return
	}
	if items == nil {
		items = []review.Item{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"total": len(items),
		"items": items,
	})
}

type resolveResponse struct {
	ReviewID string `json:"reviewId"`
	Status   string `json:"status"`
	EntityID string `json:"entityId"`
}

func (h *Handler) handleApproveReview(w http.ResponseWriter, r *http.Request) {
	h.resolveReview(w, r, true)
}

func (h *Handler) handleRejectReview(w http.ResponseWriter, r *http.Request) {
	h.resolveReview(w, r, false)
}

func (h *Handler) resolveReview(w http.ResponseWriter, r *http.Request, approve bool) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	reviewID, err := id.ParseReviewID(chi.URLParam(r, "reviewID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resolvedBy := requestcontext.SubmittedBy(ctx)

	var (
		item     review.Item
		entityID id.EntityID
	)
	if approve {
		item, entityID, err = h.ingest.ApproveReview(ctx, reviewID, resolvedBy)
	} else {
		item, entityID, err = h.ingest.RejectReview(ctx, reviewID, resolvedBy)
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "review item not found"))
		return
	case errors.Is(err, sentinel.ErrInvalidState):
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "review item already resolved"))
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "review resolution failed",
			"request_id", requestID,
			"review_id", reviewID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resolveResponse{
		ReviewID: item.ID.String(),
		Status:   string(item.Status),
		EntityID: entityID.String(),
	})
}
