// Package app assembles the daemon: config, logging, storage,
// delivery channels, the scheduling engine, and the periodic jobs
// that drive it.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	smtpchan "taskping/internal/channel/smtp"
	tgchan "taskping/internal/channel/telegram"
	"taskping/internal/config"
	"taskping/internal/dispatch"
	"taskping/internal/engine"
	"taskping/internal/scheduler"
	"taskping/internal/store"
	logx "taskping/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store  *store.SQLiteStore
	engine *engine.Engine
	disp   *dispatch.Service
	sched  *scheduler.Service

	timing engineTiming

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads the config file and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", cfgPath, err)
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	st, err := store.NewSQLiteStore(cfg.Storage.Path, store.Options{BusyTimeout: busyTimeout})
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	log.Info("store opened", logx.String("path", cfg.Storage.Path))

	engCfg, timing, err := mapEngineConfig(cfg)
	if err != nil {
		st.Close()
		logSvc.Close()
		return nil, err
	}
	eng := engine.New(engCfg, st, log.With(logx.String("comp", "engine")))

	dispCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		st.Close()
		logSvc.Close()
		return nil, err
	}
	disp := dispatch.New(dispCfg, st, log.With(logx.String("comp", "dispatch")))

	if err := registerChannels(disp, cfg, log); err != nil {
		st.Close()
		logSvc.Close()
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{
		Workers: 2,
		// A job may not outlive its own period by much; scans are
		// idempotent so cutting one short loses nothing.
		Timeout: 5 * time.Minute,
	}, nil, log.With(logx.String("comp", "scheduler")))

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		store:  st,
		engine: eng,
		disp:   disp,
		sched:  sched,
		timing: timing,
	}, nil
}

func registerChannels(disp *dispatch.Service, cfg *config.Config, log logx.Logger) error {
	if cfg.SMTP != nil {
		ch, err := smtpchan.New(smtpchan.Config{
			Addr:     cfg.SMTP.Addr,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			StartTLS: cfg.SMTP.StartTLS,
		}, log.With(logx.String("comp", "smtp")))
		if err != nil {
			return fmt.Errorf("smtp channel: %w", err)
		}
		disp.Register(ch)
	}
	if cfg.Telegram != nil {
		ch, err := tgchan.New(tgchan.Config{Token: cfg.Telegram.Token},
			log.With(logx.String("comp", "telegram")))
		if err != nil {
			return fmt.Errorf("telegram channel: %w", err)
		}
		disp.Register(ch)
	}
	return nil
}

// Start registers the periodic jobs and launches the scheduler and the
// config watcher. It returns once everything is running.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	jobs := []struct {
		name  string
		every time.Duration
		run   func(ctx context.Context) error
	}{
		{"reminder-scan", a.timing.ScanInterval, func(ctx context.Context) error {
			_, err := a.engine.ScanReminders(ctx, time.Now().UTC())
			return err
		}},
		{"overdue-scan", a.timing.OverdueInterval, func(ctx context.Context) error {
			_, err := a.engine.ScanOverdue(ctx, time.Now().UTC())
			return err
		}},
		{"dispatch-sweep", a.disp.Interval(), func(ctx context.Context) error {
			_, err := a.disp.Sweep(ctx, time.Now().UTC())
			return err
		}},
	}
	for _, j := range jobs {
		if err := a.sched.AddInterval(j.name, j.every, j.run); err != nil {
			cancel()
			return err
		}
	}

	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		return err
	}

	// Catch up immediately instead of waiting out the first interval;
	// a daemon that was down past a trigger still fires it thanks to
	// the grace window.
	for _, j := range jobs {
		if err := a.sched.RunNow(j.name); err != nil {
			a.log.Warn("startup catch-up failed", logx.String("job", j.name), logx.Err(err))
		}
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(runCtx)
	}()

	a.log.Info("started",
		logx.Duration("scan_interval", a.timing.ScanInterval),
		logx.Duration("overdue_interval", a.timing.OverdueInterval))
	return nil
}

// reloadLoop re-applies the live-tunable parts of a published config:
// log level/sinks and dispatch settings. Scan intervals and channel
// credentials take effect on restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logs.Apply(mapLogConfig(cfg))
			dispCfg, err := mapDispatchConfig(cfg)
			if err != nil {
				// Validator runs before publish, so this is unreachable
				// short of a validator bug.
				a.log.Warn("reload: bad dispatch config", logx.Err(err))
				continue
			}
			a.disp.Apply(dispCfg)
			a.log.Info("settings re-applied from config reload")
		}
	}
}

// Stop shuts everything down in dependency order.
func (a *App) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop()
	a.wg.Wait()

	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = err
	}
	a.log.Info("stopped")
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
