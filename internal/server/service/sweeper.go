package service

import (
	"context"
	"log/slog"
	"time"
)

// LinkSweeper periodically purges links whose expiry has passed, so spent
// codes stop resolving and eventually free up.
type LinkSweeper struct {
	links    ExpiredLinkStore
	interval time.Duration
	done     chan struct{}
}

// NewLinkSweeper creates a new sweeper.
func NewLinkSweeper(links ExpiredLinkStore, interval time.Duration) *LinkSweeper {
	return &LinkSweeper{
		links:    links,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (ls *LinkSweeper) Start(ctx context.Context) {
	slog.Info("link sweeper started", "interval", ls.interval)

	go func() {
		ticker := time.NewTicker(ls.interval)
		defer ticker.Stop()

		// Run once immediately on start
		ls.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				ls.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("link sweeper stopping")
				close(ls.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (ls *LinkSweeper) Wait() {
	<-ls.done
}

func (ls *LinkSweeper) runSweep(ctx context.Context) {
	n, err := ls.links.DeleteExpired(ctx)
	if err != nil {
		slog.Error("failed to sweep expired links", "error", err)
		return
	}
	if n > 0 {
		slog.Info("swept expired links", "count", n)
	}
}
