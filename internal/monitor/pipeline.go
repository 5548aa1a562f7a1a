package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-signal-alerts/internal/dedupe"
	"market-signal-alerts/internal/history"
	"market-signal-alerts/internal/notify"
	"market-signal-alerts/internal/task"
)

// Monitor is one schedulable task.
type Monitor interface {
	Name() string
	Run(ctx context.Context) task.Result
}

// sink delivers alert text to the configured channel, chunked to the
// channel's message size limit.
type sink struct {
	notifier  notify.Notifier
	channelID string
	limit     int
	logger    zerolog.Logger
}

func newSink(notifier notify.Notifier, channelID string, limit int, logger zerolog.Logger) *sink {
	if limit <= 0 {
		limit = notify.TelegramMessageLimit
	}
	return &sink{notifier: notifier, channelID: channelID, limit: limit, logger: logger}
}

func (s *sink) send(ctx context.Context, text string) error {
	for _, part := range notify.Chunk(text, s.limit) {
		if _, err := s.notifier.Send(ctx, s.channelID, part); err != nil {
			return err
		}
	}
	return nil
}

// sendFailure pushes a short delivery-failure note. Best effort: the channel
// that just failed is the only one available, so its error is only logged.
func (s *sink) sendFailure(ctx context.Context, cause error) {
	text := fmt.Sprintf("⚠️ alert delivery failed: %v", cause)
	if _, err := s.notifier.Send(ctx, s.channelID, text); err != nil {
		s.logger.Warn().Err(err).Msg("failure notification also failed")
	}
}

// publisher runs threshold survivors through both dedupe layers, notifies the
// remainder, and persists history so the persisted set reflects exactly the
// alerts whose delivery was attempted.
type publisher[I any, T history.Record] struct {
	store *history.Store[T]
	sink  *sink
	// toRecord projects an input to its persisted history record.
	toRecord func(I) T
	// toDedupe projects an input for tolerance comparison; nil disables the
	// tolerance stage entirely (exact-fingerprint dedupe only).
	toDedupe func(I) dedupe.Record
	// fromRecord projects a persisted record for tolerance comparison.
	fromRecord func(T) dedupe.Record
	// dedupeOpts yields the tolerance options for one input, so per-symbol
	// tolerances apply even within a single batch.
	dedupeOpts func(I) dedupe.Options
	format     func([]I) string
	logger     zerolog.Logger
}

// publish applies stages 4-8 of the run: exact dedupe, tolerance dedupe,
// notify, persist. The returned error is a delivery failure; everything else
// is absorbed into counts and logs.
func (p *publisher[I, T]) publish(ctx context.Context, candidates []I, counts *task.Counts) error {
	if len(candidates) == 0 {
		return nil
	}

	// Reload so the tolerance stage and the exact-match stage both see
	// whatever a previous run persisted.
	p.store.Load(ctx)
	prior := p.store.All()

	filtered := history.FilterNew(ctx, p.store, candidates, p.toRecord)
	counts.Duplicates += len(filtered.Duplicates)

	fresh := filtered.New
	if p.toDedupe != nil && len(fresh) > 0 {
		priorRecords := make([]dedupe.Record, 0, len(prior))
		for _, record := range prior {
			priorRecords = append(priorRecords, p.fromRecord(record))
		}

		kept := make([]I, 0, len(fresh))
		for _, input := range fresh {
			result := dedupe.Filter([]I{input}, p.toDedupe, priorRecords, p.dedupeOpts(input))
			if len(result.Duplicates) > 0 {
				counts.Duplicates++
				// Suppressed candidates must not enter persisted history:
				// they were never communicated.
				p.store.Remove([]T{p.toRecord(input)})
				continue
			}
			kept = append(kept, input)
		}
		fresh = kept
	}

	counts.NewAlerts += len(fresh)
	if len(fresh) == 0 {
		counts.HistoryRecords = p.store.Len()
		return nil
	}

	var deliveryErr error
	if err := p.sink.send(ctx, p.format(fresh)); err != nil {
		deliveryErr = fmt.Errorf("notify: %w", err)
		p.sink.sendFailure(ctx, err)
	}

	// Persist even on delivery failure: delivery was attempted, and
	// re-alerting the same event after a flaky send is worse than losing one.
	if err := p.store.Persist(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("history persist failed; dedupe state is in-memory only until next run")
	}
	counts.HistoryRecords = p.store.Len()
	return deliveryErr
}

// toleranceOptions maps one symbol config to the near-duplicate filter's
// options. All metric monitors are direction sensitive: a reversal is never a
// duplicate of its own opposite.
func toleranceOptions(cfg Config, fallbackLookback time.Duration, now func() time.Time) dedupe.Options {
	return dedupe.Options{
		Lookback:           cfg.Lookback(fallbackLookback),
		ToleranceAbs:       cfg.ToleranceAbs,
		TolerancePercent:   cfg.TolerancePercent,
		DirectionSensitive: true,
		Now:                now,
	}
}

// resolve folds per-symbol fetch outcomes and a delivery error into one Result.
func resolve(counts task.Counts, deliveryErr error, message string) task.Result {
	if deliveryErr != nil {
		return task.Error(counts, deliveryErr)
	}
	switch {
	case counts.Processed > 0 && counts.Successful == 0:
		return task.Error(counts, errors.New("all fetches failed"))
	case counts.Failed > 0:
		return task.Partial(counts, message)
	default:
		return task.OK(counts, message)
	}
}
