// Package dblock serializes Postgres integration tests across test binaries,
// which share one DATABASE_URL and truncate its tables.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultLockAddr = "127.0.0.1:45432"

// Acquire blocks until this process holds the lock and returns its release
// func. PAYNXT_TEST_LOCK_ADDR overrides the loopback address used as the lock.
func Acquire() func() {
	addr := os.Getenv("PAYNXT_TEST_LOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
