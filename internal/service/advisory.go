package service

import (
	"github.com/ayo6706/paynxt/internal/models"
)

// BalanceAdvisory is the non-authoritative funds check made at intake and at
// pay request approval. Only settlement decides whether money moves.
type BalanceAdvisory struct {
	Sufficient bool  `json:"sufficient"`
	Balance    int64 `json:"balance"`
}

func adviseBalance(account models.Account, amount int64) BalanceAdvisory {
	return BalanceAdvisory{
		Sufficient: account.Balance >= amount,
		Balance:    account.Balance,
	}
}

// enforce returns ErrInsufficientFunds when strict mode is on and the advisory
// found the balance short.
func (a BalanceAdvisory) enforce(strict bool) error {
	if strict && !a.Sufficient {
		return models.ErrInsufficientFunds
	}
	return nil
}
