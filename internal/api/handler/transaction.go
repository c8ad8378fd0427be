package handler

import (
	"net/http"

	"github.com/ayo6706/paynxt/internal/service"
	"github.com/go-chi/chi/v5"
)

type TransactionHandler struct {
	svc *service.TransferService
}

func NewTransactionHandler(svc *service.TransferService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// Transfer records a pending transfer and answers 202; the sweeper settles it.
func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestActor(w, r)
	if !ok {
		return
	}

	var req struct {
		ToEmail string `json:"to_email"`
		Amount  int64  `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	receipt, err := h.svc.CreateTransfer(r.Context(), service.CreateTransferInput{
		FromAccountID: actorID,
		ToEmail:       req.ToEmail,
		Amount:        req.Amount,
	})
	if err != nil {
		respondServiceError(w, r, err, "create transfer")
		return
	}
	RespondJSON(w, http.StatusAccepted, receipt)
}

func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
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

	page, err := h.svc.History(r.Context(), service.HistoryQuery{
		AccountID: actorID,
		Status:    r.URL.Query().Get("status"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondServiceError(w, r, err, "load transaction history")
		return
	}
	RespondJSON(w, http.StatusOK, page)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, chi.URLParam(r, "id"), "transaction-id")
	if !ok {
		return
	}

	tx, err := h.svc.GetTransaction(r.Context(), id, actorID)
	if err != nil {
		respondServiceError(w, r, err, "load transaction")
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}
