// Package engine implements the scheduling core: the reminder
// scanner, the overdue tracker, the recurrence spawner, and the
// notification inbox surface.
//
// Every batch entry point takes the current time as an argument, so
// tests drive the engine with a fixed clock and no timers. All
// idempotency rests on the store's dedup key; re-running any scan
// against unchanged state inserts nothing.
package engine

import (
	"time"

	"taskping/internal/schedule"
	"taskping/internal/store"
	logx "taskping/pkg/logx"
)

type Config struct {
	// Grace is how late a reminder may still fire after its trigger
	// time. Zero falls back to schedule.DefaultGrace.
	Grace time.Duration
}

type Engine struct {
	store store.Store
	log   logx.Logger
	grace time.Duration
}

func New(cfg Config, s store.Store, log logx.Logger) *Engine {
	grace := cfg.Grace
	if grace <= 0 {
		grace = schedule.DefaultGrace
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{store: s, log: log, grace: grace}
}
