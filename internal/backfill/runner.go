// Package backfill fills in missing listing coordinates in one transaction.
package backfill

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-geocoder/internal/config"
	"github.com/sells-group/listing-geocoder/internal/db"
	"github.com/sells-group/listing-geocoder/internal/listing"
	"github.com/sells-group/listing-geocoder/internal/monitoring"
	"github.com/sells-group/listing-geocoder/internal/resilience"
	"github.com/sells-group/listing-geocoder/pkg/geocode"
)

// quotaAttempts is the number of geocode calls made for one listing while
// the provider reports quota exhaustion: the first call plus one retry.
const quotaAttempts = 2

// Options controls a single run.
type Options struct {
	Limit         int
	DryRun        bool
	Pace          time.Duration
	QuotaBackoff  time.Duration
	ProgressEvery int
}

// OptionsFromConfig converts the config file settings into run options.
func OptionsFromConfig(cfg config.BackfillConfig) Options {
	return Options{
		Pace:          time.Duration(cfg.PaceMs) * time.Millisecond,
		QuotaBackoff:  time.Duration(cfg.QuotaBackoffSecs) * time.Second,
		ProgressEvery: cfg.ProgressEvery,
	}
}

// Runner executes a backfill run.
type Runner struct {
	connect  db.ConnectFunc
	dsn      string
	geocoder geocode.Client
	opts     Options

	clock    clockwork.Clock
	metrics  *monitoring.Metrics
	log      *zap.Logger
	progress []Progress
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock sets the clock used for pacing, backoff and update timestamps.
func WithClock(c clockwork.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithMetrics sets the metrics the run records into.
func WithMetrics(m *monitoring.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithProgress adds a progress reporter alongside the log lines.
func WithProgress(p Progress) RunnerOption {
	return func(r *Runner) { r.progress = append(r.progress, p) }
}

// NewRunner creates a Runner that connects with connect to dsn and
// geocodes through gc.
func NewRunner(connect db.ConnectFunc, dsn string, gc geocode.Client, opts Options, options ...RunnerOption) *Runner {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 25
	}
	if opts.QuotaBackoff <= 0 {
		opts.QuotaBackoff = 10 * time.Second
	}

	r := &Runner{
		connect:  connect,
		dsn:      dsn,
		geocoder: gc,
		opts:     opts,
		clock:    clockwork.NewRealClock(),
		log:      zap.L(),
	}
	for _, o := range options {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = monitoring.NewMetrics()
	}
	r.progress = append([]Progress{&logProgress{every: opts.ProgressEvery, log: r.log}}, r.progress...)
	return r
}

// Metrics returns the metrics the runner records into.
func (r *Runner) Metrics() *monitoring.Metrics {
	return r.metrics
}

// Run geocodes every listing missing coordinates and commits all updates
// at once. Any database error rolls back the whole run. The returned
// Summary reflects what was processed even when an error is returned.
func (r *Runner) Run(ctx context.Context) (summary Summary, err error) {
	runID := uuid.NewString()
	log := r.log.With(zap.String("run_id", runID))
	start := r.clock.Now()

	defer func() {
		r.metrics.RunDuration.Set(r.clock.Since(start).Seconds())
		if err != nil {
			r.metrics.LastRunSuccess.Set(0)
			log.Error("backfill failed, no updates were saved",
				zap.Error(err),
				zap.Int("processed", summary.Processed),
				zap.Int("updated_discarded", summary.Updated),
			)
			return
		}
		r.metrics.LastRunSuccess.Set(1)
	}()

	log.Info("starting listing geocode backfill",
		zap.String("table", listing.Table),
		zap.String("db", db.Host(r.dsn)),
		zap.Int("limit", r.opts.Limit),
		zap.Bool("dry_run", r.opts.DryRun),
	)

	conn, err := r.connect(ctx, r.dsn)
	if err != nil {
		return summary, eris.Wrap(err, "backfill: connect")
	}
	defer func() {
		if closeErr := conn.Close(context.WithoutCancel(ctx)); closeErr != nil {
			log.Warn("failed to close database connection", zap.Error(closeErr))
		}
	}()

	log.Info("loading listings missing coordinates")
	rows, err := listing.FetchMissingCoords(ctx, conn, r.opts.Limit)
	if err != nil {
		return summary, eris.Wrap(err, "backfill: fetch listings")
	}
	summary.Total = len(rows)
	r.metrics.RowsFetched.Set(float64(len(rows)))
	log.Info("rows to process", zap.Int("total", len(rows)))

	if len(rows) == 0 {
		return summary, nil
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return summary, eris.Wrap(err, "backfill: begin transaction")
	}

	summary, err = r.processRows(ctx, log, tx, rows, summary)
	for _, p := range r.progress {
		p.Done(summary)
	}
	if err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			log.Warn("rollback failed", zap.Error(rbErr))
		}
		return summary, err
	}

	if r.opts.DryRun {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return summary, eris.Wrap(rbErr, "backfill: rollback dry run")
		}
		log.Info("dry run, transaction rolled back", zap.Int("updated", summary.Updated))
		return summary, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return summary, eris.Wrap(err, "backfill: commit")
	}

	log.Info("backfill committed",
		zap.Int("total", summary.Total),
		zap.Int("updated", summary.Updated),
		zap.Int("no_match", summary.NoMatch),
		zap.Int("skipped", summary.Skipped),
		zap.Int("quota_exhausted", summary.QuotaExhausted),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// processRows walks the rows in order and folds each outcome into summary.
// It stops at the first error, which always aborts the run.
func (r *Runner) processRows(ctx context.Context, log *zap.Logger, tx db.Execer, rows []listing.Row, summary Summary) (Summary, error) {
	total := len(rows)
	for i, row := range rows {
		pos := i + 1

		outcome, err := r.processRow(ctx, log, tx, row, pos, total)
		if err != nil {
			return summary, err
		}
		summary = summary.Add(outcome)
		r.metrics.RowsProcessed.WithLabelValues(string(outcome)).Inc()

		for _, p := range r.progress {
			p.Row(pos, total, summary)
		}

		if err := r.sleep(ctx, r.opts.Pace); err != nil {
			return summary, eris.Wrapf(err, "backfill: interrupted after row %d/%d", pos, total)
		}
	}
	return summary, nil
}

// processRow geocodes one listing and writes its coordinates on a match.
// Only a failed write is returned as an error.
func (r *Runner) processRow(ctx context.Context, log *zap.Logger, tx db.Execer, row listing.Row, pos, total int) (Outcome, error) {
	log = log.With(zap.Int64("id", row.ID), zap.Int("row", pos), zap.Int("total", total))

	query := listing.BuildQuery(row)
	if query == "" {
		log.Debug("no address fields, skipping")
		return OutcomeSkipped, nil
	}

	res, outcome := r.geocode(ctx, log, query)
	if outcome != OutcomeUpdated {
		return outcome, nil
	}

	if err := listing.UpdateCoords(ctx, tx, row.ID, res.Latitude, res.Longitude, r.clock.Now().UTC()); err != nil {
		return "", eris.Wrapf(err, "backfill: write row %d/%d", pos, total)
	}
	log.Debug("coordinates updated",
		zap.Float64("lat", res.Latitude),
		zap.Float64("lng", res.Longitude),
	)
	return OutcomeUpdated, nil
}

// geocode resolves query, waiting out one quota error before giving up on
// the row. A nil result is returned for every outcome except OutcomeUpdated.
func (r *Runner) geocode(ctx context.Context, log *zap.Logger, query string) (*geocode.Result, Outcome) {
	cfg := resilience.FixedDelay(quotaAttempts, r.opts.QuotaBackoff)
	cfg.Clock = r.clock
	cfg.ShouldRetry = geocode.IsQuotaExceeded
	cfg.OnRetry = func(_ int, delay time.Duration, err error) {
		r.metrics.QuotaBackoffs.Inc()
		log.Warn("geocoding quota exceeded, backing off",
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	res, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*geocode.Result, error) {
		return r.call(ctx, query)
	})

	switch {
	case err == nil && res != nil && res.Matched:
		return res, OutcomeUpdated
	case err == nil:
		fields := []zap.Field{zap.String("query", query)}
		if res != nil {
			fields = append(fields, zap.String("status", res.Status))
			if res.Message != "" {
				fields = append(fields, zap.String("provider_message", res.Message))
			}
		}
		log.Info("no geocode match", fields...)
		return nil, OutcomeNoMatch
	case geocode.IsQuotaExceeded(err):
		log.Warn("geocoding quota still exceeded, leaving row for a later run",
			zap.String("query", query),
			zap.Error(err),
		)
		return nil, OutcomeQuotaExhausted
	default:
		log.Warn("geocode failed",
			zap.String("query", query),
			zap.Error(err),
		)
		return nil, OutcomeFailed
	}
}

// call makes one geocode request and records its metrics.
func (r *Runner) call(ctx context.Context, query string) (*geocode.Result, error) {
	start := r.clock.Now()
	res, err := r.geocoder.Geocode(ctx, query)
	r.metrics.GeocodeDuration.Observe(r.clock.Since(start).Seconds())

	result := "ok"
	switch {
	case geocode.IsQuotaExceeded(err):
		result = "quota"
	case err != nil:
		result = "transport"
	case res == nil || !res.Matched:
		result = "no_match"
	}
	r.metrics.GeocodeRequests.WithLabelValues(result).Inc()

	return res, err
}

// sleep waits d on the runner's clock or until ctx is done.
func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := r.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
