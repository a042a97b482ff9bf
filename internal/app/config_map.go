package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskping/internal/config"
	"taskping/internal/dispatch"
	"taskping/internal/engine"
	logx "taskping/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

type engineTiming struct {
	ScanInterval    time.Duration
	OverdueInterval time.Duration
	Grace           time.Duration
}

func mapEngineConfig(cfg *config.Config) (engine.Config, engineTiming, error) {
	scan, err := config.ParseDurationOrDefault("engine.scan_interval", cfg.Engine.ScanInterval, time.Minute)
	if err != nil {
		return engine.Config{}, engineTiming{}, err
	}
	overdue, err := config.ParseDurationOrDefault("engine.overdue_interval", cfg.Engine.OverdueInterval, time.Minute)
	if err != nil {
		return engine.Config{}, engineTiming{}, err
	}
	grace, err := config.ParseDurationOrDefault("engine.grace", cfg.Engine.Grace, 10*time.Minute)
	if err != nil {
		return engine.Config{}, engineTiming{}, err
	}
	return engine.Config{Grace: grace},
		engineTiming{ScanInterval: scan, OverdueInterval: overdue, Grace: grace},
		nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	interval, err := config.ParseDurationOrDefault("dispatch.interval", cfg.Dispatch.Interval, 30*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	retryBase, err := config.ParseDurationOrDefault("dispatch.retry_base", cfg.Dispatch.RetryBase, 500*time.Millisecond)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Interval:   interval,
		RatePerSec: float64(cfg.Dispatch.RatePerSec),
		RetryMax:   cfg.Dispatch.RetryMax,
		RetryBase:  retryBase,
		SkipRead:   cfg.Dispatch.SkipRead,
	}, nil
}

// validateConfig is the reload gate: a snapshot failing here never
// replaces the running one.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if cfg.SMTP == nil && cfg.Telegram == nil {
		return fmt.Errorf("at least one delivery channel (smtp or telegram) must be configured")
	}
	if cfg.SMTP != nil {
		if strings.TrimSpace(cfg.SMTP.Addr) == "" || strings.TrimSpace(cfg.SMTP.From) == "" {
			return fmt.Errorf("smtp.addr and smtp.from are required when smtp is configured")
		}
	}
	if cfg.Telegram != nil && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required when telegram is configured")
	}
	if cfg.Dispatch.RatePerSec < 0 {
		return fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	if cfg.Dispatch.RetryMax < 0 {
		return fmt.Errorf("dispatch.retry_max must be >= 0")
	}
	if _, _, err := mapEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}
