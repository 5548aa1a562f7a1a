package task

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Func is one schedulable task run. Implementations never panic for expected
// failures; everything observable lands in the Result.
type Func func(ctx context.Context) Result

// Runner schedules named tasks on fixed intervals and reports each run's
// Result as one structured log line.
type Runner struct {
	cron   *cron.Cron
	logger zerolog.Logger
	tasks  map[string]Func
	ctx    context.Context
}

// NewRunner constructs a Runner. ctx bounds every scheduled run. A firing
// that comes due while the previous run of the same task is still in flight
// is skipped, not queued.
func NewRunner(ctx context.Context, logger zerolog.Logger) *Runner {
	logger = logger.With().Str("component", "runner").Logger()
	return &Runner{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: logger}))),
		logger: logger,
		tasks:  make(map[string]Func),
		ctx:    ctx,
	}
}

// Register adds a named task invoked every interval.
func (r *Runner) Register(name string, interval time.Duration, fn Func) error {
	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("task %q already registered", name)
	}
	if interval <= 0 {
		return fmt.Errorf("task %q: interval must be positive", name)
	}

	r.tasks[name] = fn
	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		r.run(name, fn)
	}); err != nil {
		return fmt.Errorf("register task %q: %w", name, err)
	}

	r.logger.Info().Str("task", name).Dur("interval", interval).Msg("task registered")
	return nil
}

// Start begins scheduled execution.
func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info().Int("tasks", len(r.tasks)).Msg("scheduler started")
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("scheduler stopped")
}

// RunOnce executes one registered task immediately, outside its schedule.
func (r *Runner) RunOnce(ctx context.Context, name string) (Result, error) {
	fn, ok := r.tasks[name]
	if !ok {
		return Result{}, fmt.Errorf("unknown task %q", name)
	}
	return r.execute(ctx, name, fn), nil
}

// Names lists the registered task names.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	return names
}

func (r *Runner) run(name string, fn Func) {
	if r.ctx.Err() != nil {
		return
	}
	r.execute(r.ctx, name, fn)
}

func (r *Runner) execute(ctx context.Context, name string, fn Func) Result {
	start := time.Now()
	result := fn(ctx)
	result.Duration = time.Since(start)

	event := r.logger.Info()
	switch result.Status {
	case StatusPartial:
		event = r.logger.Warn()
	case StatusError:
		event = r.logger.Error().Err(result.Err)
	}

	event.
		Str("task", name).
		Str("status", string(result.Status)).
		Dur("duration", result.Duration).
		Int("processed", result.Counts.Processed).
		Int("successful", result.Counts.Successful).
		Int("failed", result.Counts.Failed).
		Int("filtered", result.Counts.Filtered).
		Int("new_alerts", result.Counts.NewAlerts).
		Int("duplicates", result.Counts.Duplicates).
		Int("history_records", result.Counts.HistoryRecords).
		Str("message", result.Message).
		Msg("task run finished")

	return result
}

// cronLogger adapts zerolog to the cron scheduler's logging interface.
// Skipped overlapping firings arrive through Info.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
