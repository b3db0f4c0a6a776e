// Package splitter exports a date range that is too large for a single log request by
// cutting it into fixed-size sub-ranges.
package splitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/youpoison/YM-Logs-API/internal/dataset"
	"github.com/youpoison/YM-Logs-API/internal/daterange"
	"github.com/youpoison/YM-Logs-API/internal/failure"
	"github.com/youpoison/YM-Logs-API/internal/lifecycle"
	"github.com/youpoison/YM-Logs-API/internal/metrika"
)

// DefaultInterval is the sub-range length in days.
const DefaultInterval = 15

// ErrIntervalTooLarge means a sub-range was still rejected by the API.
var ErrIntervalTooLarge = errors.New("interval too large, reduce the number of days per request")

// Runner exports a single log request. *lifecycle.Controller implements it.
type Runner interface {
	Run(ctx context.Context, req metrika.Request) (*dataset.Dataset, error)
}

// Splitter runs the whole range first and falls back to Interval-day sub-ranges.
type Splitter struct {
	runner   Runner
	interval int
}

// New creates a Splitter. A non-positive interval selects DefaultInterval.
func New(runner Runner, interval int) *Splitter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Splitter{runner: runner, interval: interval}
}

// Interval returns the sub-range length in days.
func (s *Splitter) Interval() int {
	return s.interval
}

// Export returns every row of req.Range. Sub-ranges are exported in chronological order
// and concatenated; a sub-range that cannot be served is not split again.
func (s *Splitter) Export(ctx context.Context, req metrika.Request) (*dataset.Dataset, error) {
	ds, err := s.runner.Run(ctx, req)
	if err == nil || !errors.Is(err, lifecycle.ErrNeedsSplit) {
		return ds, err
	}

	if req.Range.Days() <= s.interval {
		return nil, s.tooLarge(req.Range)
	}

	parts := daterange.Split(req.Range, s.interval)
	log.Info().
		Str("range", req.Range.String()).
		Int("interval", s.interval).
		Int("sub_ranges", len(parts)).
		Msg("Splitting date range")

	out := dataset.New(req.Fields)
	for i, rng := range parts {
		log.Info().Int("sub_range", i+1).Int("of", len(parts)).Str("range", rng.String()).Msg("Exporting sub-range")
		part, err := s.runner.Run(ctx, req.WithRange(rng))
		if errors.Is(err, lifecycle.ErrNeedsSplit) {
			return nil, s.tooLarge(rng)
		}
		if err != nil {
			return nil, err
		}
		if err := out.Append(part); err != nil {
			return nil, failure.New(failure.Remote, "concat "+rng.String(), err)
		}
	}
	return out, nil
}

func (s *Splitter) tooLarge(rng daterange.Range) error {
	return failure.New(failure.Config, "split", fmt.Errorf("%s (%d days): %w", rng, s.interval, ErrIntervalTooLarge))
}
