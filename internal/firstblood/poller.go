// Package firstblood runs the polling loop that detects newly solved
// challenges and announces each first blood once.
package firstblood

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lewisedginton/ctfd_announcer/internal/ctfd"
	"github.com/lewisedginton/ctfd_announcer/internal/ledger"
	"github.com/lewisedginton/ctfd_announcer/internal/markdown"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 30 * time.Second

var (
	// ErrChannelUnavailable aborts a tick before anything is fetched.
	ErrChannelUnavailable = errors.New("announcement channel unavailable")
	// ErrLedgerWrite means a message was sent but could not be recorded.
	ErrLedgerWrite = errors.New("ledger write failed")
)

// ScoreboardClient is the part of the CTFd client the poller reads.
type ScoreboardClient interface {
	FetchChallenges(ctx context.Context) ([]ctfd.Challenge, error)
	FetchSolves(ctx context.Context, challengeID int64) ([]ctfd.Solve, error)
}

// Channel delivers one announcement.
type Channel interface {
	Send(ctx context.Context, message string) error
}

// ChannelResolver looks up the announcement channel at the start of a tick.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context) (Channel, error)
}

// Recorder receives per-tick outcomes, typically for metrics.
type Recorder interface {
	RecordTick(result TickResult, duration time.Duration, err error)
}

// TickResult counts what one tick did.
type TickResult struct {
	Checked         int
	Candidates      int
	Announced       int
	SendFailures    int
	LedgerFailures  int
	SkippedOnErrors int
}

// Config wires a Poller.
type Config struct {
	Client   ScoreboardClient
	Ledger   ledger.Store
	Resolver ChannelResolver
	Interval time.Duration
	Recorder Recorder
	Logger   logger.Logger
}

// Poller reconciles the platform's solves with the ledger on a fixed
// interval. Ticks never overlap.
type Poller struct {
	client   ScoreboardClient
	ledger   ledger.Store
	resolver ChannelResolver
	interval time.Duration
	recorder Recorder
	logger   logger.Logger

	lastTick atomic.Int64 // unix nanos of the last completed tick
	now      func() time.Time
}

// New validates cfg and returns a Poller.
func New(cfg Config) (*Poller, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("scoreboard client is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("channel resolver is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Poller{
		client:   cfg.Client,
		ledger:   cfg.Ledger,
		resolver: cfg.Resolver,
		interval: interval,
		recorder: cfg.Recorder,
		logger:   log.WithFields(logger.StringField("component", "poller")),
		now:      time.Now,
	}, nil
}

// Message formats a first-blood announcement.
func Message(challengeName, solverName string) string {
	return fmt.Sprintf(":drop_of_blood: First blood on **%s** by %s!",
		markdown.ChallengeName(challengeName), markdown.TeamName(solverName))
}

// Interval returns the configured poll period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// LastTick returns when the most recent tick finished, or the zero time.
func (p *Poller) LastTick() time.Time {
	n := p.lastTick.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Run ticks immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("First-blood poller started", logger.DurationField("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.safeTick(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("First-blood poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// safeTick runs one tick, recovering panics so the schedule continues.
func (p *Poller) safeTick(ctx context.Context) {
	ctx, correlationID := logger.EnsureCorrelationID(ctx)
	log := p.logger.WithCorrelationID(correlationID)
	start := p.now()

	var (
		result TickResult
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tick panicked: %v", r)
			}
		}()
		result, err = p.Tick(ctx)
	}()

	duration := p.now().Sub(start)
	p.lastTick.Store(p.now().UnixNano())
	if p.recorder != nil {
		p.recorder.RecordTick(result, duration, err)
	}

	fields := []logger.LogField{
		logger.IntField("checked", result.Checked),
		logger.IntField("candidates", result.Candidates),
		logger.IntField("announced", result.Announced),
		logger.IntField("send_failures", result.SendFailures),
		logger.IntField("ledger_failures", result.LedgerFailures),
		logger.DurationField("duration", duration),
	}
	if err != nil {
		log.Error("Poll tick failed", append(fields, logger.ErrorField(err))...)
		return
	}
	log.Debug("Poll tick completed", fields...)
}

// Tick runs one reconciliation pass. Challenges are visited in upstream
// order; a challenge is marked only after its announcement was sent.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult
	log := logger.GetLoggerFromContext(ctx, p.logger)

	channel, err := p.resolver.ResolveChannel(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	if channel == nil {
		return result, ErrChannelUnavailable
	}

	challenges, err := p.client.FetchChallenges(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch challenges: %w", err)
	}
	result.Checked = len(challenges)

	candidates := make([]ctfd.Challenge, 0, len(challenges))
	for _, ch := range challenges {
		announced, err := p.ledger.IsAnnounced(ctx, ch.ID)
		if err != nil {
			result.SkippedOnErrors++
			log.Warn("Ledger read failed, skipping challenge this tick",
				logger.ChallengeIDField(ch.ID), logger.ErrorField(err))
			continue
		}
		if !announced {
			candidates = append(candidates, ch)
		}
	}
	result.Candidates = len(candidates)

	var ledgerErrs []error
	for _, ch := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		clog := log.WithFields(logger.ChallengeIDField(ch.ID), logger.ChallengeNameField(ch.Name))

		solves, err := p.client.FetchSolves(ctx, ch.ID)
		if err != nil {
			result.SkippedOnErrors++
			clog.Warn("Fetching solves failed, retrying next tick", logger.ErrorField(err))
			continue
		}
		if len(solves) == 0 {
			continue
		}

		first := solves[0]
		if err := channel.Send(ctx, Message(ch.Name, first.Name)); err != nil {
			result.SendFailures++
			clog.Warn("Sending announcement failed, retrying next tick", logger.ErrorField(err))
			continue
		}

		if err := p.ledger.MarkAnnounced(ctx, ch.ID); err != nil {
			result.LedgerFailures++
			ledgerErrs = append(ledgerErrs, err)
			clog.Error("Announcement sent but not recorded; it may be repeated next tick",
				logger.ErrorField(fmt.Errorf("%w: %v", ErrLedgerWrite, err)))
			continue
		}

		result.Announced++
		clog.Info("First blood announced", logger.StringField("solver", first.Name))
	}

	if len(ledgerErrs) > 0 {
		return result, fmt.Errorf("%w: %w", ErrLedgerWrite, errors.Join(ledgerErrs...))
	}
	return result, nil
}
