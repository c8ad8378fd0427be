package handler

import (
	"net/http"

	"github.com/ayo6706/paynxt/internal/service"
)

type UserHandler struct {
	accounts *service.AccountService
}

func NewUserHandler(accounts *service.AccountService) *UserHandler {
	return &UserHandler{accounts: accounts}
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestActor(w, r)
	if !ok {
		return
	}
	account, err := h.accounts.GetProfile(r.Context(), actorID)
	if err != nil {
		respondServiceError(w, r, err, "load profile")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

func (h *UserHandler) Balance(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestActor(w, r)
	if !ok {
		return
	}
	balance, err := h.accounts.GetBalance(r.Context(), actorID)
	if err != nil {
		respondServiceError(w, r, err, "load balance")
		return
	}
	RespondJSON(w, http.StatusOK, balance)
}
