package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type AccountService struct {
	store QueryStore
	audit *AuditService
	cost  int
}

func NewAccountService(store QueryStore) *AccountService {
	return &AccountService{
		store: store,
		audit: NewAuditService(store),
		cost:  bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *AccountService) WithHashCost(cost int) *AccountService {
	s.cost = cost
	return s
}

type RegisterInput struct {
	Email    string
	Password string
	Role     string
}

// OpenAccountInput is the operator path used by seeding; it may carry an
// opening balance.
type OpenAccountInput struct {
	Email          string
	Password       string
	Role           string
	InitialBalance int64
}

type BalanceView struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   int64     `json:"balance"`
	Formatted string    `json:"formatted"`
}

// Register creates an account with a zero balance.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	return s.Open(ctx, OpenAccountInput{Email: in.Email, Password: in.Password, Role: in.Role})
}

func (s *AccountService) Open(ctx context.Context, in OpenAccountInput) (*models.Account, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", models.ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, minPasswordLength)
	}
	role := normalizeState(in.Role)
	if role == "" {
		role = domain.RoleConsumer
	}
	if !domain.IsValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, in.Role)
	}
	if in.InitialBalance < 0 {
		return nil, fmt.Errorf("%w: opening balance cannot be negative", models.ErrInvalidAmount)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var account models.Account
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		if _, err := q.GetAccountByEmail(ctx, email); err == nil {
			return models.ErrEmailTaken
		} else if !errors.Is(err, repository.ErrNoRows) {
			return fmt.Errorf("check email: %w", err)
		}

		account, err = q.CreateAccount(ctx, repository.CreateAccountParams{
			ID:           uuid.New(),
			Email:        email,
			PasswordHash: string(hash),
			Role:         role,
			Balance:      in.InitialBalance,
		})
		if repository.IsUniqueViolation(err) {
			return models.ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return s.audit.Write(ctx, q, domain.EntityAccount, account.ID, &account.ID, "opened", "", role, nil)
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Authenticate checks the credentials and returns the account.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.store.Queries().GetAccountByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNoRows) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return &account, nil
}

func (s *AccountService) GetProfile(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account, err := s.store.Queries().GetAccount(ctx, accountID)
	if errors.Is(err, repository.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &account, nil
}

func (s *AccountService) GetBalance(ctx context.Context, accountID uuid.UUID) (*BalanceView, error) {
	account, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &BalanceView{
		AccountID: account.ID,
		Balance:   account.Balance,
		Formatted: domain.Money(account.Balance).String(),
	}, nil
}
