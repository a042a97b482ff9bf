// Package dispatch drains persisted notifications to their delivery
// channels.
//
// The dispatcher holds no queue of its own: each sweep re-derives the
// work list from the store (unsent, due, task still open), sends, and
// flips the sent flag only on success. A crash or failed send costs
// nothing; the row is simply selected again next sweep.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"taskping/internal/channel"
	"taskping/internal/model"
	"taskping/internal/store"
	logx "taskping/pkg/logx"
)

type Config struct {
	// Interval is the sweep period when driven by the scheduler.
	Interval time.Duration

	// RatePerSec caps outbound sends across all channels.
	RatePerSec float64

	// RetryMax is the number of retries after the first attempt;
	// RetryBase is the linear backoff unit between attempts.
	RetryMax  int
	RetryBase time.Duration

	// SkipRead leaves out notifications the user already saw in the
	// inbox before delivery happened.
	SkipRead bool

	// BatchLimit bounds one sweep. Zero means no limit.
	BatchLimit int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	return c
}

// Service routes pending notifications to per-user channels.
type Service struct {
	store store.Store
	log   logx.Logger

	mu       sync.Mutex
	cfg      Config
	limiter  *rate.Limiter
	channels map[string]channel.Deliverer
}

func New(cfg Config, s store.Store, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:    s,
		log:      log,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		channels: make(map[string]channel.Deliverer),
	}
}

// Register adds a delivery channel under its name. Later registrations
// replace earlier ones.
func (s *Service) Register(d channel.Deliverer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[d.Name()] = d
}

// Apply swaps in new settings, used on config reload.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
}

func (s *Service) snapshot() (Config, map[string]channel.Deliverer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chans := make(map[string]channel.Deliverer, len(s.channels))
	for k, v := range s.channels {
		chans[k] = v
	}
	return s.cfg, chans
}

// Interval reports the configured sweep period.
func (s *Service) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Interval
}

// Sweep runs one dispatch pass at the given instant and reports how
// many notifications were delivered.
//
// Per-notification problems (missing task or user, unroutable
// recipient, exhausted retries) are logged and leave the row unsent
// for a later sweep; only selection errors abort the pass.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	cfg, chans := s.snapshot()

	pending, err := s.store.GetPendingNotifications(ctx, store.PendingFilter{
		DueBy:    now,
		SkipRead: cfg.SkipRead,
		Limit:    cfg.BatchLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("dispatch sweep: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	start := time.Now()
	delivered := 0
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		task, err := s.store.GetTaskByID(ctx, n.TaskID)
		if err != nil {
			s.log.Warn("dispatch: task lookup failed, leaving unsent",
				logx.String("notification", n.ID), logx.String("task", n.TaskID), logx.Err(err))
			continue
		}
		user, err := s.store.GetUserByID(ctx, n.UserID)
		if err != nil {
			s.log.Warn("dispatch: user lookup failed, leaving unsent",
				logx.String("notification", n.ID), logx.String("user", n.UserID), logx.Err(err))
			continue
		}

		dlv, rcpt, err := route(chans, user)
		if err != nil {
			s.log.Warn("dispatch: no usable channel, leaving unsent",
				logx.String("notification", n.ID), logx.String("user", user.ID), logx.Err(err))
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return delivered, err
		}

		subject, body := render(n, task)
		if err := s.send(ctx, cfg, dlv, rcpt, subject, body); err != nil {
			s.log.Error("dispatch: delivery failed",
				logx.String("notification", n.ID),
				logx.String("channel", dlv.Name()),
				logx.Err(err))
			continue
		}

		if err := s.store.MarkNotificationSent(ctx, n.ID, now); err != nil {
			// Delivered but not recorded: the next sweep re-sends. The
			// store erroring here usually means bigger trouble anyway.
			return delivered, fmt.Errorf("dispatch sweep: marking %s sent: %w", n.ID, err)
		}
		delivered++
	}

	s.log.Info("dispatch sweep finished",
		logx.Int("pending", len(pending)),
		logx.Int("delivered", delivered),
		logx.Duration("dur", time.Since(start)))
	return delivered, nil
}

// send makes up to RetryMax+1 attempts with linear backoff.
func (s *Service) send(ctx context.Context, cfg Config, d channel.Deliverer, rcpt channel.Recipient, subject, body string) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * cfg.RetryBase
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr = d.Deliver(ctx, rcpt, subject, body); lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", cfg.RetryMax+1, lastErr)
}

// route picks the channel for a user: their preferred one when it is
// registered and addressable, email otherwise.
func route(chans map[string]channel.Deliverer, u *model.User) (channel.Deliverer, channel.Recipient, error) {
	rcpt := channel.Recipient{
		DisplayName: u.DisplayName,
		Email:       u.Email,
		ChatID:      u.TelegramChatID,
	}

	if u.Channel == model.ChannelTelegram && u.TelegramChatID != 0 {
		if d, ok := chans[model.ChannelTelegram]; ok {
			return d, rcpt, nil
		}
	}

	if u.Email != "" {
		if d, ok := chans[model.ChannelEmail]; ok {
			return d, rcpt, nil
		}
	}

	return nil, channel.Recipient{}, fmt.Errorf("user %s has no reachable channel", u.ID)
}
