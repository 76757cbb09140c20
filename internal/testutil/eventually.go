// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Eventually polls cond with a short exponential backoff until it returns
// true, failing the test once deadline has passed.
func Eventually(t *testing.T, name string, deadline time.Duration, cond func() bool) {
	t.Helper()

	if cond() {
		return
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 5 * time.Millisecond
	strategy.MaxInterval = 100 * time.Millisecond
	strategy.MaxElapsedTime = deadline

	ticker := backoff.NewTicker(strategy)
	defer ticker.Stop()

	// The ticker closes its channel once MaxElapsedTime has passed.
	for range ticker.C {
		if cond() {
			return
		}
	}
	if cond() {
		return
	}
	t.Fatalf("timed out after %v waiting for %s", deadline, name)
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
