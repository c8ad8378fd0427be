package handler

import (
	"context"
	"net/http"

	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type PayRequestHandler struct {
	svc *service.PayRequestService
}

func NewPayRequestHandler(svc *service.PayRequestService) *PayRequestHandler {
	return &PayRequestHandler{svc: svc}
}

type payRequestList struct {
	PayRequests []models.PayRequest `json:"pay_requests"`
}

func (h *PayRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestActor(w, r)
	if !ok {
		return
	}

	var req struct {
		ConsumerEmail string `json:"consumer_email"`
		Amount        int64  `json:"amount"`
		Message       string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	pr, err := h.svc.Create(r.Context(), service.CreatePayRequestInput{
		MerchantID:    actorID,
		ConsumerEmail: req.ConsumerEmail,
		Amount:        req.Amount,
		Message:       req.Message,
	})
	if err != nil {
		respondServiceError(w, r, err, "create pay request")
		return
	}
	RespondJSON(w, http.StatusCreated, pr)
}

func (h *PayRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, chi.URLParam(r, "id"), "pay-request-id")
	if !ok {
		return
	}
	pr, err := h.svc.Get(r.Context(), id, actorID)
	if err != nil {
		respondServiceError(w, r, err, "load pay request")
		return
	}
	RespondJSON(w, http.StatusOK, pr)
}

func (h *PayRequestHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.ListSent, "list sent pay requests")
}

func (h *PayRequestHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.ListReceived, "list received pay requests")
}

func (h *PayRequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, chi.URLParam(r, "id"), "pay-request-id")
	if !ok {
		return
	}
	result, err := h.svc.Approve(r.Context(), id, actorID)
	if err != nil {
		respondServiceError(w, r, err, "approve pay request")
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

func (h *PayRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, chi.URLParam(r, "id"), "pay-request-id")
	if !ok {
		return
	}
	pr, err := h.svc.Reject(r.Context(), id, actorID)
	if err != nil {
		respondServiceError(w, r, err, "reject pay request")
		return
	}
	RespondJSON(w, http.StatusOK, pr)
}

type listFunc func(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.PayRequest, error)

func (h *PayRequestHandler) list(w http.ResponseWriter, r *http.Request, fetch listFunc, operation string) {
	actorID, ok := requestActor(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}
	items, err := fetch(r.Context(), actorID, limit, offset)
	if err != nil {
		respondServiceError(w, r, err, operation)
		return
	}
	RespondJSON(w, http.StatusOK, payRequestList{PayRequests: items})
}
