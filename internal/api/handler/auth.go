package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/paynxt/internal/api/middleware"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/service"
	"go.uber.org/zap"
)

type AuthHandler struct {
	accounts *service.AccountService
	tokenTTL time.Duration
}

func NewAuthHandler(accounts *service.AccountService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{accounts: accounts, tokenTTL: tokenTTL}
}

type authResponse struct {
	Token   string          `json:"token"`
	Account *models.Account `json:"account"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		respondServiceError(w, r, err, "register account")
		return
	}
	h.respondWithToken(w, r, http.StatusCreated, account)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, err, "authenticate")
		return
	}
	h.respondWithToken(w, r, http.StatusOK, account)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, account *models.Account) {
	token, err := middleware.IssueToken(account.ID, account.Role, h.tokenTTL)
	if err != nil {
		zap.L().Error("sign token failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		RespondError(w, r, http.StatusInternalServerError, "auth/token-signing-failed", "Failed to sign token")
		return
	}
	RespondJSON(w, status, authResponse{Token: token, Account: account})
}
