// Package seed loads account fixtures from YAML and opens them in the ledger.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/service"
	"gopkg.in/yaml.v3"
)

// Fixture is the top level of a seed file:
//
//	accounts:
//	  - email: alice@example.com
//	    password: correct-horse
//	    role: CONSUMER
//	    balance: 10000
type Fixture struct {
	Accounts []AccountFixture `yaml:"accounts"`
}

type AccountFixture struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Balance  int64  `yaml:"balance"`
}

// Result reports what Apply did per email.
type Result struct {
	Created []string
	Skipped []string
}

// Opener is the account operation seeding needs.
type Opener interface {
	Open(ctx context.Context, in service.OpenAccountInput) (*models.Account, error)
}

func LoadFile(path string) (*Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(content)
}

func Parse(content []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Accounts) == 0 {
		return nil, errors.New("seed file has no accounts")
	}
	return &f, nil
}

// Apply opens every account in the fixture. Accounts whose email is already
// registered are skipped, so a fixture can be applied more than once.
func Apply(ctx context.Context, accounts Opener, f *Fixture) (*Result, error) {
	var res Result
	for i, a := range f.Accounts {
		_, err := accounts.Open(ctx, service.OpenAccountInput{
			Email:          a.Email,
			Password:       a.Password,
			Role:           a.Role,
			InitialBalance: a.Balance,
		})
		switch {
		case err == nil:
			res.Created = append(res.Created, a.Email)
		case errors.Is(err, models.ErrEmailTaken):
			res.Skipped = append(res.Skipped, a.Email)
		default:
			return &res, fmt.Errorf("seed account %d (%s): %w", i, a.Email, err)
		}
	}
	return &res, nil
}
