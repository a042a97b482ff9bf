// Package scheduler runs the engine's periodic ticks on a cron-backed
// worker pool.
//
// Jobs are registered with a spec ("@every 1m" or a five-field cron
// expression) and executed by a fixed pool. A job still running when
// its next firing arrives is skipped, both in-process via a per-job
// running flag and across processes via the injectable Lock, so two
// instances sharing a database never scan concurrently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "taskping/pkg/logx"
)

type Config struct {
	Workers     int
	Timeout     time.Duration // per-run budget, zero means none
	HistorySize int
}

// Lock serializes a named job across scheduler instances. Acquire
// returns ok=false when another holder is active; release must be
// called when ok is true. The default LocalLock only guards within
// this process; deployments sharing a database plug in something
// stronger.
type Lock interface {
	Acquire(ctx context.Context, name string) (release func(), ok bool, err error)
}

// LocalLock implements Lock with in-process mutual exclusion.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]bool)}
}

func (l *LocalLock) Acquire(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
	}
	return release, true, nil
}

// HistoryItem records one finished run.
type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type job struct {
	name    string
	spec    string
	run     func(ctx context.Context) error
	timeout time.Duration

	mu      sync.Mutex
	running bool
}

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	lock Lock

	parser cron.Parser
	c      *cron.Cron
	jobs   []*job

	queue  chan *job
	stopCh chan struct{}

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, lock Lock, log logx.Logger) *Service {
	if lock == nil {
		lock = NewLocalLock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		lock:   lock,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddInterval registers a job firing every period.
func (s *Service) AddInterval(name string, every time.Duration, run func(ctx context.Context) error) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	return s.AddCron(name, fmt.Sprintf("@every %s", every), run)
}

// AddCron registers a job with a cron spec. Registration is only
// allowed before Start.
func (s *Service) AddCron(name, spec string, run func(ctx context.Context) error) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return errors.New("scheduler already started")
	}
	s.jobs = append(s.jobs, &job{name: name, spec: spec, run: run, timeout: s.cfg.Timeout})
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return errors.New("scheduler already started")
	}
	s.stopCh = make(chan struct{})

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s.queue = make(chan *job, 64)

	s.c = cron.New(cron.WithParser(s.parser))
	for _, j := range s.jobs {
		j := j
		if _, err := s.c.AddFunc(j.spec, func() { s.enqueue(j) }); err != nil {
			return fmt.Errorf("registering job %s: %w", j.name, err)
		}
	}

	for i := 0; i < workers; i++ {
		go s.worker(ctx, s.stopCh, s.queue)
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("workers", workers), logx.Int("jobs", len(s.jobs)))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	s.log.Info("scheduler stopped")
}

// RunNow queues a registered job out of schedule, used at startup so
// a restarted daemon catches up without waiting for the next firing.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			s.enqueueLocked(j)
			return nil
		}
	}
	return fmt.Errorf("unknown job %s", name)
}

// History returns a copy of the recent run records, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) enqueue(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(j)
}

func (s *Service) enqueueLocked(j *job) {
	if s.queue == nil {
		s.log.Debug("scheduler not running, dropping job", logx.String("job", j.name))
		return
	}
	select {
	case s.queue <- j:
	default:
		s.log.Warn("scheduler queue full, dropping job", logx.String("job", j.name))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan *job) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execOne(ctx, j)
		}
	}
}

func (s *Service) execOne(ctx context.Context, j *job) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		s.log.Debug("job still running, skipping firing", logx.String("job", j.name))
		return
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	release, ok, err := s.lock.Acquire(ctx, j.name)
	if err != nil {
		s.log.Error("job lock acquire failed", logx.String("job", j.name), logx.Err(err))
		return
	}
	if !ok {
		s.log.Debug("job held elsewhere, skipping firing", logx.String("job", j.name))
		return
	}
	defer release()

	start := time.Now()
	runCtx := ctx
	var cancel func()
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	err = j.run(runCtx)
	dur := time.Since(start)

	item := HistoryItem{Name: j.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed", logx.String("job", j.name), logx.Duration("dur", dur), logx.Err(err))
	} else {
		s.log.Debug("job completed", logx.String("job", j.name), logx.Duration("dur", dur))
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	size := s.cfg.HistorySize
	if size <= 0 {
		size = 200
	}
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
}
