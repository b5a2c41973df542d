package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LexiconIndonesia/career-crawler-service/common/logger"
	"github.com/LexiconIndonesia/career-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/career-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/career-crawler-service/common/work"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
)

// Msg is the part of a JetStream delivery a session uses.
type Msg interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
	InProgress() error
}

// PageOpener opens the browser page of one session.
type PageOpener func(ctx context.Context) (browser.Page, error)

// CapturerFactory returns the failure capturer of a session, or nil.
type CapturerFactory func(session string) browser.Capturer

type RunnerConfig struct {
	// MaxRetries is the number of failed attempts after which a company
	// goes to the dead letter subject.
	MaxRetries     int
	SessionTimeout time.Duration
	// Heartbeat is the interval of InProgress signals sent while a session runs.
	Heartbeat   time.Duration
	Concurrency int
}

type RunnerDeps struct {
	Crawler   Crawler
	Route     Route
	Sessions  *work.SessionTracker
	Publisher messaging.Publisher
	OpenPage  PageOpener
	// Capturers and Logs are optional.
	Capturers CapturerFactory
	Logs      logger.LogSink
}

// Runner consumes company messages and runs one session per delivery on
// a bounded worker pool.
type Runner struct {
	RunnerDeps
	cfg    RunnerConfig
	pool   *work.Pool[struct{}]
	logger zerolog.Logger
}

func NewRunner(deps RunnerDeps, cfg RunnerConfig) (*Runner, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	pc := work.DefaultPoolConfig()
	pc.Name = string(deps.Crawler.Mode())
	pc.NumWorkers = cfg.Concurrency
	pc.ResultChanSize = cfg.Concurrency * 2
	pool, err := work.NewWorkerPoolWithConfig[struct{}](pc)
	if err != nil {
		return nil, err
	}
	return &Runner{
		RunnerDeps: deps,
		cfg:        cfg,
		pool:       pool,
		logger:     log.With().Str("mode", string(deps.Crawler.Mode())).Logger(),
	}, nil
}

// Start starts the pool and consumes consumer until the returned context
// is stopped.
func (r *Runner) Start(ctx context.Context, consumer jetstream.Consumer) (jetstream.ConsumeContext, error) {
	r.pool.Start(ctx)
	go r.drainResults()

	cc, err := consumer.Consume(func(m jetstream.Msg) {
		r.Submit(ctx, m)
	})
	if err != nil {
		r.pool.Stop()
		return nil, fmt.Errorf("consuming %s: %w", r.Route.Subject, err)
	}
	r.logger.Info().Str("subject", r.Route.Subject).Int("concurrency", r.cfg.Concurrency).Msg("Session runner started")
	return cc, nil
}

// Stop waits for running sessions.
func (r *Runner) Stop() {
	r.pool.Stop()
	st := r.pool.Stats()
	r.logger.Info().Int64("queued", st.TasksQueued).Int64("completed", st.TasksCompleted).Msg("Session runner stopped")
}

// Submit queues the session of msg, blocking while every worker is busy.
func (r *Runner) Submit(ctx context.Context, msg Msg) {
	task, err := work.SimpleTask(func(ctx context.Context) error {
		return r.HandleMessage(ctx, msg)
	}, work.WithErrorHandler[struct{}](func(err error) {
		r.logger.Debug().Err(err).Msg("Session task returned an error")
	}))
	if err == nil {
		err = r.pool.AddTaskNonBlocking(task)
		if errors.Is(err, work.ErrQueueFull) {
			r.logger.Debug().Msg("All session workers busy, waiting")
			err = r.pool.AddTask(ctx, task)
		}
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("Could not queue session, asking for redelivery")
		_ = msg.Nak()
	}
}

func (r *Runner) drainResults() {
	for res := range r.pool.Results() {
		r.logger.Debug().Str("taskID", res.TaskID).Bool("success", res.IsSuccess()).Dur("duration", res.Duration).Msg("Session task finished")
	}
}

// HandleMessage processes one delivery to the end and settles it: acked
// when done or skipped, nacked for redelivery when the session failed.
func (r *Runner) HandleMessage(ctx context.Context, msg Msg) error {
	m, err := messaging.DecodeCompanyMessage(msg.Data())
	if err != nil {
		r.logger.Error().Err(err).Msg("Dropping malformed message")
		_ = msg.Term()
		return err
	}
	id := m.CompanyID
	mode := string(r.Crawler.Mode())
	key := r.Sessions.Key(id)
	log := r.logger.With().Int64("companyID", id).Str("session", key).Logger()

	state, err := r.Sessions.Get(ctx, id)
	if err != nil {
		_ = msg.Nak()
		return err
	}

	switch {
	case state.Status == work.StatusInProgress:
		// left behind by a worker that died; the crawl is not resumed
		log.Warn().Msg("Session already in progress, skipping")
		metrics.IncSession(mode, "skipped")
		return r.settle(ctx, msg, id)

	case state.Status == work.StatusFailed && state.Retries >= r.cfg.MaxRetries:
		log.Warn().Int("retries", state.Retries).Str("subject", r.Route.DeadLetter).Msg("Session failed too often, sending to dead letter")
		err := messaging.PublishJSON(ctx, r.Publisher, r.Route.DeadLetter, messaging.DeadLetter{
			CompanyID: id,
			Subject:   r.Route.Subject,
			Retries:   state.Retries,
			FailedAt:  time.Now().UTC(),
		})
		if err != nil {
			_ = msg.Nak()
			return err
		}
		metrics.IncSession(mode, "dead_letter")
		return r.settle(ctx, msg, id)
	}

	if err := r.Sessions.Start(ctx, id); err != nil {
		_ = msg.Nak()
		return err
	}
	state.Status = work.StatusInProgress
	log.Info().Int("attempt", state.Retries+1).Msg("Session started")

	if err := r.run(ctx, msg, id, key, state); err != nil {
		// the session context may be done, the bookkeeping must still happen
		retries, ferr := r.Sessions.Fail(context.WithoutCancel(ctx), id)
		log.Error().Err(err).Int("retries", retries).Msg("Session failed")
		metrics.IncSession(mode, "failed")
		_ = msg.Nak()
		return errors.Join(err, ferr)
	}

	if err := r.Sessions.Done(ctx, id); err != nil {
		log.Error().Err(err).Msg("Could not mark session done")
	}
	metrics.IncSession(mode, "done")
	log.Info().Msg("Session done")
	return msg.Ack()
}

func (r *Runner) settle(ctx context.Context, msg Msg, id int64) error {
	if err := msg.Ack(); err != nil {
		return err
	}
	return r.Sessions.Delete(ctx, id)
}

func (r *Runner) run(ctx context.Context, msg Msg, id int64, key string, state work.Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.cfg.SessionTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, r.cfg.SessionTimeout)
		defer cancelTimeout()
	}

	stop := r.heartbeat(ctx, msg)
	defer stop()

	page, err := r.OpenPage(ctx)
	if err != nil {
		return fmt.Errorf("opening browser page: %w", err)
	}
	defer func() { _ = page.Close() }()

	sessionLog, hook := logger.ForSession(r.logger, r.Logs, string(r.Crawler.Mode()), key, id)
	defer hook.Wait()

	s := &Session{CompanyID: id, State: state, Page: page, Logger: sessionLog}
	if r.Capturers != nil {
		s.Capturer = r.Capturers(key)
	}
	return r.Crawler.Crawl(ctx, s)
}

// heartbeat keeps the delivery from being redelivered while the session runs.
func (r *Runner) heartbeat(ctx context.Context, msg Msg) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(r.cfg.Heartbeat)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				if err := msg.InProgress(); err != nil {
					r.logger.Debug().Err(err).Msg("Heartbeat failed")
				}
			}
		}
	}()
	return func() { close(done) }
}
