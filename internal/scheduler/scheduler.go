package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketsheet/internal/analysis"
	"github.com/sawpanic/marketsheet/internal/market"
)

// ErrUnexpected wraps a panic recovered from a cycle stage
var ErrUnexpected = errors.New("unexpected failure")

// Fetcher retrieves one market snapshot
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (market.Snapshot, error)
}

// Writer persists one analyzed snapshot
type Writer interface {
	Write(path string, table analysis.Table, summary analysis.Summary) error
}

// AnalyzeFunc derives the table and summary of a snapshot
type AnalyzeFunc func(market.Snapshot) (analysis.Table, analysis.Summary, error)

// Recorder observes finished cycles
type Recorder interface {
	ObserveCycle(result CycleResult)
}

// Stage names one step of a cycle
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageAnalyze Stage = "analyze"
	StageWrite   Stage = "write"
)

// StageResult is the outcome of one stage
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// CycleResult represents the result of one fetch -> analyze -> write cycle
type CycleResult struct {
	ID        string        `json:"id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Stage     Stage         `json:"failed_stage,omitempty"` // first failing stage
	Kind      string        `json:"kind"`
	Err       error         `json:"-"`
	Assets    int           `json:"assets"`
	Stages    []StageResult `json:"stages"`
}

// Config holds the loop settings
type Config struct {
	Interval     time.Duration
	WorkbookPath string
}

// Loop drives cycles forever, sleeping a fixed interval after each one
type Loop struct {
	config   Config
	fetcher  Fetcher
	analyze  AnalyzeFunc
	writer   Writer
	recorder Recorder

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu     sync.RWMutex
	last   *CycleResult
	cycles int64
}

// Option customises a Loop
type Option func(*Loop)

// WithRecorder reports every finished cycle to r
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithAnalyzer replaces analysis.Analyze
func WithAnalyzer(fn AnalyzeFunc) Option {
	return func(l *Loop) { l.analyze = fn }
}

// New creates a loop over the given components
func New(config Config, fetcher Fetcher, writer Writer, opts ...Option) *Loop {
	l := &Loop{
		config:  config,
		fetcher: fetcher,
		analyze: analysis.Analyze,
		writer:  writer,
		sleep:   sleepContext,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes cycles until ctx is cancelled. Cycle failures are logged and never returned.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", l.config.Interval).
		Str("path", l.config.WorkbookPath).
		Msg("Scheduler starting")

	for {
		l.RunOnce(ctx)

		if err := l.sleep(ctx, l.config.Interval); err != nil {
			log.Info().Int64("cycles", l.Cycles()).Msg("Scheduler stopped")
			return err
		}
	}
}

// RunOnce executes a single cycle and returns its result
func (l *Loop) RunOnce(ctx context.Context) CycleResult {
	result := CycleResult{
		ID:        uuid.NewString(),
		StartTime: l.now(),
	}
	logger := log.With().Str("cycle_id", result.ID).Logger()

	err := l.runStages(ctx, &result)

	result.EndTime = l.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Err = err
	result.Success = err == nil
	result.Kind = kindOf(err)

	l.report(logger, result)
	return result
}

func (l *Loop) runStages(ctx context.Context, result *CycleResult) error {
	var snapshot market.Snapshot
	if err := l.stage(result, StageFetch, func() (err error) {
		snapshot, err = l.fetcher.FetchSnapshot(ctx)
		return err
	}); err != nil {
		return err
	}
	result.Assets = snapshot.Len()

	var (
		table   analysis.Table
		summary analysis.Summary
	)
	if err := l.stage(result, StageAnalyze, func() (err error) {
		table, summary, err = l.analyze(snapshot)
		return err
	}); err != nil {
		return err
	}

	return l.stage(result, StageWrite, func() error {
		return l.writer.Write(l.config.WorkbookPath, table, summary)
	})
}

// stage runs fn, converting a panic into ErrUnexpected, and records its timing
func (l *Loop) stage(result *CycleResult, stage Stage, fn func() error) (err error) {
	start := l.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s stage panicked: %v", ErrUnexpected, stage, r)
		}
		result.Stages = append(result.Stages, StageResult{Stage: stage, Duration: l.now().Sub(start), Err: err})
		if err != nil {
			result.Stage = stage
		}
	}()

	return fn()
}

func (l *Loop) report(logger zerolog.Logger, result CycleResult) {
	l.mu.Lock()
	l.last = &result
	l.cycles++
	l.mu.Unlock()

	if result.Success {
		logger.Info().
			Int("assets", result.Assets).
			Str("path", l.config.WorkbookPath).
			Dur("duration", result.Duration).
			Msg("Data updated successfully in workbook")
	} else {
		logger.Error().
			Err(result.Err).
			Str("stage", string(result.Stage)).
			Str("kind", result.Kind).
			Bool("transient", market.IsTransient(result.Err)).
			Dur("duration", result.Duration).
			Msg("Cycle failed, retrying after the interval")
	}

	if l.recorder != nil {
		l.recorder.ObserveCycle(result)
	}
}

// LastResult returns the most recent cycle result, if any
func (l *Loop) LastResult() (CycleResult, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.last == nil {
		return CycleResult{}, false
	}
	return *l.last, true
}

// Cycles returns the number of cycles run so far
func (l *Loop) Cycles() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cycles
}

func kindOf(err error) string {
	if errors.Is(err, ErrUnexpected) {
		return "unexpected"
	}
	return market.Kind(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
