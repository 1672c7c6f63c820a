package testutil

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Epoch is the instant test clocks start at.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// NewClock returns a mock clock set to Epoch.
//
// The mock runs AfterFunc callbacks on their own goroutine, so tests that
// advance past a timer should wait for its effect with require.Eventually.
func NewClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(Epoch)
	return mock
}
