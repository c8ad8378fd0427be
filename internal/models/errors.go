package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrSelfTransfer        = errors.New("cannot transfer to yourself")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPayRequestNotFound  = errors.New("pay request not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrForbidden           = errors.New("access denied")
	ErrConflict            = errors.New("state conflict")
	ErrInvalidInput        = errors.New("invalid input")
)

// StatusConflictError is returned when an action targets an entity that has
// already left the state the action requires.
type StatusConflictError struct {
	Entity string
	Status string
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("%s already %s", e.Entity, strings.ToLower(e.Status))
}

// Is lets callers match any status conflict with errors.Is(err, ErrConflict).
func (e *StatusConflictError) Is(target error) bool {
	return target == ErrConflict
}
