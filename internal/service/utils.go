package service

import (
	"fmt"
	"strings"

	"github.com/ayo6706/paynxt/internal/domain"
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// pageWindow clamps a caller supplied limit/offset into the accepted range.
func pageWindow(limit, offset int) (int32, int32) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	if limit > domain.MaxHistoryLimit {
		limit = domain.MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return int32(limit), int32(offset)
}
