// Package reaper evicts idle anonymous users and their in-memory sessions.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/rizzcoach/internal/store"
)

// CleanupCallback is called for every reaped user before its row is deleted.
type CleanupCallback func(userID string)

// Start runs a background goroutine that every interval removes users idle
// longer than ttl.
func Start(ctx context.Context, repo store.Repository, ttl, interval time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Reaper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("Reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one cleanup pass and returns the number of users reaped.
func Sweep(ctx context.Context, repo store.Repository, ttl time.Duration, onCleanup CleanupCallback) int {
	idle, err := repo.GetIdleUsers(ctx, ttl)
	if err != nil {
		slog.Error("Reaper failed to list idle users", "error", err)
		return 0
	}
	if len(idle) == 0 {
		return 0
	}

	slog.Info("Reaper found idle users", "count", len(idle))

	reaped := 0
	for _, user := range idle {
		slog.Info("Reaper cleaning up user",
			"user_id", user.UserID,
			"idle_for", user.IdleFor(time.Now()).Round(time.Second))

		if onCleanup != nil {
			onCleanup(user.UserID)
		}

		if err := repo.DeleteUser(ctx, user.UserID); err != nil {
			slog.Warn("Reaper failed to delete user",
				"error", err,
				"user_id", user.UserID)
			continue
		}
		reaped++
	}

	slog.Info("Reaper cleanup completed", "cleaned", reaped)
	return reaped
}
