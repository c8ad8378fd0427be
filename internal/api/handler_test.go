package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayo6706/paynxt/internal/api"
	"github.com/ayo6706/paynxt/internal/api/middleware"
	"github.com/ayo6706/paynxt/internal/boltstore"
	"github.com/ayo6706/paynxt/internal/config"
	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/ayo6706/paynxt/internal/idempotency"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "paynxt-test"
	testJWTAudience = "paynxt-api-test"
	testPassword    = "correct-horse"
)

type testAPI struct {
	router   chi.Router
	ledger   *boltstore.Store
	accounts *service.AccountService
	settle   *service.SettlementService
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	ledger, err := boltstore.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)

	cfg := &config.Config{
		HTTPPort:           "0",
		StoreDriver:        config.DriverBolt,
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		JWTTTL:             time.Hour,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
	}
	accounts := service.NewAccountService(ledger).WithHashCost(bcrypt.MinCost)
	services := api.Services{
		Accounts:    accounts,
		Transfers:   service.NewTransferService(ledger),
		PayRequests: service.NewPayRequestService(ledger),
	}
	idemStore := idempotency.NewStore(nil, ledger.Queries(), cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, zap.NewNop(), ledger, idemStore, nil, services)

	return &testAPI{
		router:   router.Routes(),
		ledger:   ledger,
		accounts: accounts,
		settle:   service.NewSettlementService(ledger),
	}
}

// openAccount seeds an account with a balance and logs it in over HTTP.
func (a *testAPI) openAccount(t *testing.T, email, role string, balance int64) (uuid.UUID, string) {
	t.Helper()
	account, err := a.accounts.Open(context.Background(), service.OpenAccountInput{
		Email:          email,
		Password:       testPassword,
		Role:           role,
		InitialBalance: balance,
	})
	require.NoError(t, err)

	w := a.do(t, http.MethodPost, "/v1/auth/login", "", "", map[string]string{"email": email, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return account.ID, resp.Token
}

func (a *testAPI) do(t *testing.T, method, path, token, idemKey string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	account, err := a.ledger.Queries().GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRFC7807ProblemDetails(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/v1/users/balance", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	body := decodeProblem(t, w)
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/users/balance", body["instance"])
	assert.NotEmpty(t, body["request_id"])
}

func TestRegisterLoginAndProfile(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodPost, "/v1/auth/register", "", "", map[string]string{
		"email":    "Shop@Example.com",
		"password": testPassword,
		"role":     domain.RoleMerchant,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var registered struct {
		Token   string         `json:"token"`
		Account models.Account `json:"account"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &registered))
	assert.Equal(t, "shop@example.com", registered.Account.Email)
	assert.Equal(t, domain.RoleMerchant, registered.Account.Role)
	assert.Zero(t, registered.Account.Balance)
	assert.NotContains(t, w.Body.String(), "password")

	w = a.do(t, http.MethodPost, "/v1/auth/register", "", "", map[string]string{
		"email":    "shop@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/v1/auth/register", "", "", map[string]string{
		"email":    "short@example.com",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/v1/auth/login", "", "", map[string]string{
		"email":    "shop@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodGet, "/v1/users/profile", registered.Token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, registered.Account.ID, profile.ID)
}

func TestTransferAcceptedThenSettled(t *testing.T) {
	a := setupAPI(t)
	aliceID, aliceToken := a.openAccount(t, "alice@example.com", domain.RoleConsumer, 1000)
	bobID, bobToken := a.openAccount(t, "bob@example.com", domain.RoleConsumer, 0)

	w := a.do(t, http.MethodPost, "/v1/transactions/transfer", aliceToken, "transfer-1", map[string]any{
		"to_email": "bob@example.com",
		"amount":   300,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var receipt service.TransferReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, domain.TxStatusPending, receipt.Transaction.Status)
	assert.Equal(t, domain.TxKindTransfer, receipt.Transaction.Kind)
	assert.True(t, receipt.Advisory.Sufficient)

	// intake never moves money
	assert.EqualValues(t, 1000, a.balance(t, aliceID))
	assert.EqualValues(t, 0, a.balance(t, bobID))

	result, err := a.settle.Settle(context.Background(), receipt.Transaction.ID)
	require.NoError(t, err)
	require.Equal(t, service.OutcomeCompleted, result.Outcome)

	w = a.do(t, http.MethodGet, "/v1/users/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var balance service.BalanceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	assert.EqualValues(t, 700, balance.Balance)
	assert.Equal(t, "7.00", balance.Formatted)

	w = a.do(t, http.MethodGet, "/v1/transactions/history?status=completed", bobToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.HistoryPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Transactions, 1)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, domain.TxStatusCompleted, page.Transactions[0].Status)
	assert.EqualValues(t, 300, a.balance(t, bobID))
}

func TestTransferWithInsufficientAdvisoryIsAccepted(t *testing.T) {
	a := setupAPI(t)
	_, aliceToken := a.openAccount(t, "alice@example.com", domain.RoleConsumer, 100)
	a.openAccount(t, "bob@example.com", domain.RoleConsumer, 0)

	w := a.do(t, http.MethodPost, "/v1/transactions/transfer", aliceToken, "transfer-big", map[string]any{
		"to_email": "bob@example.com",
		"amount":   500,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var receipt service.TransferReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.False(t, receipt.Advisory.Sufficient)

	result, err := a.settle.Settle(context.Background(), receipt.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFailed, result.Outcome)

	w = a.do(t, http.MethodGet, "/v1/transactions/"+receipt.Transaction.ID.String(), aliceToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tx models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.Equal(t, domain.TxStatusFailed, tx.Status)
	require.NotNil(t, tx.FailureReason)
	assert.Equal(t, domain.FailureReasonInsufficientBalance, *tx.FailureReason)
}

func TestTransferIdempotencyKey(t *testing.T) {
	a := setupAPI(t)
	_, aliceToken := a.openAccount(t, "alice@example.com", domain.RoleConsumer, 1000)
	a.openAccount(t, "bob@example.com", domain.RoleConsumer, 0)
	payload := map[string]any{"to_email": "bob@example.com", "amount": 100}

	w := a.do(t, http.MethodPost, "/v1/transactions/transfer", aliceToken, "", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)

	first := a.do(t, http.MethodPost, "/v1/transactions/transfer", aliceToken, "same-key", payload)
	require.Equal(t, http.StatusAccepted, first.Code)

	replay := a.do(t, http.MethodPost, "/v1/transactions/transfer", aliceToken, "same-key", payload)
	require.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "store", replay.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	conflict := a.do(t, http.MethodPost, "/v1/transactions/transfer", aliceToken, "same-key", map[string]any{"to_email": "bob@example.com", "amount": 101})
	require.Equal(t, http.StatusConflict, conflict.Code)

	w = a.do(t, http.MethodGet, "/v1/transactions/history", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.HistoryPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 1, page.Total)
}

func TestTransferValidationErrors(t *testing.T) {
	a := setupAPI(t)
	_, aliceToken := a.openAccount(t, "alice@example.com", domain.RoleConsumer, 1000)

	cases := []struct {
		name    string
		payload map[string]any
		status  int
	}{
		{"self transfer", map[string]any{"to_email": "alice@example.com", "amount": 10}, http.StatusBadRequest},
		{"unknown recipient", map[string]any{"to_email": "nobody@example.com", "amount": 10}, http.StatusNotFound},
		{"zero amount", map[string]any{"to_email": "alice@example.com", "amount": 0}, http.StatusBadRequest},
		{"unknown field", map[string]any{"to_email": "alice@example.com", "amount": 10, "currency": "USD"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, "/v1/transactions/transfer", aliceToken, "key-"+tc.name, tc.payload)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			decodeProblem(t, w)
		})
	}

	w := a.do(t, http.MethodGet, "/v1/transactions/history?status=LOST", aliceToken, "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = a.do(t, http.MethodGet, "/v1/transactions/history?limit=abc", aliceToken, "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTransactionParticipantsOnly(t *testing.T) {
	a := setupAPI(t)
	_, aliceToken := a.openAccount(t, "alice@example.com", domain.RoleConsumer, 1000)
	a.openAccount(t, "bob@example.com", domain.RoleConsumer, 0)
	_, eveToken := a.openAccount(t, "eve@example.com", domain.RoleConsumer, 0)

	w := a.do(t, http.MethodPost, "/v1/transactions/transfer", aliceToken, "k1", map[string]any{"to_email": "bob@example.com", "amount": 10})
	require.Equal(t, http.StatusAccepted, w.Code)
	var receipt service.TransferReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))

	w = a.do(t, http.MethodGet, "/v1/transactions/"+receipt.Transaction.ID.String(), eveToken, "", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodGet, "/v1/transactions/"+uuid.NewString(), aliceToken, "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/v1/transactions/not-a-uuid", aliceToken, "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayRequestLifecycle(t *testing.T) {
	a := setupAPI(t)
	merchantID, merchantToken := a.openAccount(t, "shop@example.com", domain.RoleMerchant, 0)
	consumerID, consumerToken := a.openAccount(t, "carol@example.com", domain.RoleConsumer, 500)

	w := a.do(t, http.MethodPost, "/v1/pay-requests", consumerToken, "pr-consumer", map[string]any{
		"consumer_email": "carol@example.com",
		"amount":         100,
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, "/v1/pay-requests", merchantToken, "pr-1", map[string]any{
		"consumer_email": "carol@example.com",
		"amount":         200,
		"message":        "order #42",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pr models.PayRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pr))
	assert.Equal(t, domain.PayRequestStatusPending, pr.Status)
	assert.Equal(t, merchantID, pr.MerchantID)
	assert.Equal(t, consumerID, pr.ConsumerID)

	w = a.do(t, http.MethodGet, "/v1/pay-requests/received", consumerToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var received struct {
		PayRequests []models.PayRequest `json:"pay_requests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &received))
	require.Len(t, received.PayRequests, 1)

	w = a.do(t, http.MethodGet, "/v1/pay-requests/sent", consumerToken, "", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	approvePath := "/v1/pay-requests/" + pr.ID.String() + "/approve"
	w = a.do(t, http.MethodPatch, approvePath, merchantToken, "", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPatch, approvePath, consumerToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approval service.ApprovalResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &approval))
	assert.Equal(t, domain.PayRequestStatusApproved, approval.PayRequest.Status)
	assert.Equal(t, domain.TxStatusPending, approval.Transaction.Status)
	assert.Equal(t, domain.TxKindPayRequest, approval.Transaction.Kind)
	assert.Equal(t, consumerID, approval.Transaction.FromAccountID)
	assert.Equal(t, merchantID, approval.Transaction.ToAccountID)
	require.NotNil(t, approval.PayRequest.TransactionID)
	assert.Equal(t, approval.Transaction.ID, *approval.PayRequest.TransactionID)

	w = a.do(t, http.MethodPatch, approvePath, consumerToken, "", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decodeProblem(t, w)["detail"], "already approved")

	w = a.do(t, http.MethodPatch, "/v1/pay-requests/"+pr.ID.String()+"/reject", consumerToken, "", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	_, err := a.settle.Settle(context.Background(), approval.Transaction.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 300, a.balance(t, consumerID))
	assert.EqualValues(t, 200, a.balance(t, merchantID))
}

func TestPayRequestReject(t *testing.T) {
	a := setupAPI(t)
	_, merchantToken := a.openAccount(t, "shop@example.com", domain.RoleMerchant, 0)
	_, consumerToken := a.openAccount(t, "carol@example.com", domain.RoleConsumer, 500)
	_, outsiderToken := a.openAccount(t, "dave@example.com", domain.RoleConsumer, 0)

	w := a.do(t, http.MethodPost, "/v1/pay-requests", merchantToken, "pr-2", map[string]any{
		"consumer_email": "carol@example.com",
		"amount":         50,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var pr models.PayRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pr))

	w = a.do(t, http.MethodPatch, "/v1/pay-requests/"+pr.ID.String()+"/reject", outsiderToken, "", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPatch, "/v1/pay-requests/"+pr.ID.String()+"/reject", consumerToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rejected models.PayRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Equal(t, domain.PayRequestStatusRejected, rejected.Status)
	assert.Nil(t, rejected.TransactionID)

	w = a.do(t, http.MethodGet, "/v1/pay-requests/"+pr.ID.String(), merchantToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/v1/pay-requests/"+uuid.NewString(), merchantToken, "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndDocs(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/health/live", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/health/ready", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/openapi.yaml", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/v1/transactions/transfer")

	w = a.do(t, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidTokenRejected(t *testing.T) {
	a := setupAPI(t)
	id, _ := a.openAccount(t, "alice@example.com", domain.RoleConsumer, 0)

	otherSecret := "another-secret-0123456789-another"
	middleware.SetJWTSecret(otherSecret)
	forged, err := middleware.IssueToken(id, domain.RoleConsumer, time.Hour)
	require.NoError(t, err)
	middleware.SetJWTSecret(testJWTSecret)

	w := a.do(t, http.MethodGet, "/v1/users/profile", forged, "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := middleware.IssueToken(id, domain.RoleConsumer, -time.Hour)
	require.NoError(t, err)
	w = a.do(t, http.MethodGet, "/v1/users/profile", expired, "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
