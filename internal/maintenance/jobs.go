// Package maintenance runs the periodic jobs: preference retention and the
// daily accuracy rollup.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
)

// Parser accepts standard 5-field expressions (minute hour dom month dow).
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type Jobs struct {
	Preferences *preference.Learner
	Feedback    *feedback.Tracker
	Timeout     time.Duration
	Logger      zerolog.Logger
	Now         func() time.Time
}

func New(prefs *preference.Learner, fb *feedback.Tracker, logger zerolog.Logger) *Jobs {
	return &Jobs{
		Preferences: prefs,
		Feedback:    fb,
		Timeout:     5 * time.Minute,
		Logger:      logger,
		Now:         time.Now,
	}
}

func (j *Jobs) PurgePreferences(ctx context.Context) (int64, error) {
	return j.Preferences.Purge(ctx)
}

// RollupYesterday aggregates the previous UTC day.
func (j *Jobs) RollupYesterday(ctx context.Context) (int, error) {
	day := j.Now().UTC().AddDate(0, 0, -1)
	aggs, err := j.Feedback.RollupDay(ctx, day)
	if err != nil {
		return 0, err
	}
	j.Logger.Info().Str("day", day.Format(time.DateOnly)).Int("rows", len(aggs)).Msg("accuracy rollup done")
	return len(aggs), nil
}

// RunOnce runs both jobs and returns the first error.
func (j *Jobs) RunOnce(ctx context.Context) error {
	if _, err := j.PurgePreferences(ctx); err != nil {
		return fmt.Errorf("purge preferences: %w", err)
	}
	if _, err := j.RollupYesterday(ctx); err != nil {
		return fmt.Errorf("rollup: %w", err)
	}
	return nil
}

// Schedule registers the jobs on a new cron runner. The caller starts and
// stops it.
func (j *Jobs) Schedule(retention, rollup string, loc *time.Location) (*cron.Cron, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithParser(Parser), cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(retention, j.wrap("retention", func(ctx context.Context) error {
		_, err := j.PurgePreferences(ctx)
		return err
	})); err != nil {
		return nil, fmt.Errorf("retention schedule %q: %w", retention, err)
	}
	if _, err := c.AddFunc(rollup, j.wrap("rollup", func(ctx context.Context) error {
		_, err := j.RollupYesterday(ctx)
		return err
	})); err != nil {
		return nil, fmt.Errorf("rollup schedule %q: %w", rollup, err)
	}
	return c, nil
}

func (j *Jobs) wrap(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			j.Logger.Error().Err(err).Str("job", name).Msg("maintenance job failed")
		}
	}
}
