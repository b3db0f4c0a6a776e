// Package lifecycle drives one log request through the Logs API: evaluate, create,
// poll until processed, download every part, and clean up the server-side job.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/youpoison/YM-Logs-API/internal/dataset"
	"github.com/youpoison/YM-Logs-API/internal/failure"
	"github.com/youpoison/YM-Logs-API/internal/metrika"
	"github.com/youpoison/YM-Logs-API/internal/retry"
)

var (
	// ErrNeedsSplit means the API refused the request as too large; no job was created.
	ErrNeedsSplit = errors.New("log request is too large, the date range must be split")
	// ErrProcessingFailed means the server could not produce the report.
	ErrProcessingFailed = errors.New("log request processing failed")
)

// State is a step of the request lifecycle.
type State string

const (
	StateInit       State = "INIT"
	StateEvaluating State = "EVALUATING"
	StateSubmitted  State = "SUBMITTED"
	StatePolling    State = "POLLING"
	StateProcessed  State = "PROCESSED"
	StateFailed     State = "FAILED"
	StateDeleted    State = "DELETED"
)

// Config controls polling and retries.
type Config struct {
	// PollInterval is the pause between status checks.
	PollInterval time.Duration

	// MaxWait bounds the time spent polling one job. Zero waits forever.
	MaxWait time.Duration

	// Retry applies to every remote call.
	Retry retry.Policy

	// ReleaseTimeout bounds the final clean or cancel, which outlives the caller's
	// context. Zero selects DefaultReleaseTimeout.
	ReleaseTimeout time.Duration
}

// DefaultReleaseTimeout is the time allowed for removing a finished log request.
const DefaultReleaseTimeout = 2 * time.Minute

// DefaultConfig polls every 6 seconds with no limit on waiting or on transient retries.
func DefaultConfig() Config {
	return Config{
		PollInterval:   6 * time.Second,
		Retry:          retry.Unbounded(),
		ReleaseTimeout: DefaultReleaseTimeout,
	}
}

// Controller runs log requests one at a time against a single client.
type Controller struct {
	client metrika.Client
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewController creates a Controller.
func NewController(client metrika.Client, cfg Config) *Controller {
	return &Controller{
		client: client,
		cfg:    cfg,
		sleep:  sleepContext,
	}
}

// job is the state of one Run. It is never shared between runs.
type job struct {
	state   State
	request metrika.LogRequest
	logger  zerolog.Logger
}

func (j *job) transition(s State) {
	j.logger.Debug().Str("from", string(j.state)).Str("to", string(s)).Msg("Lifecycle transition")
	j.state = s
}

// Run exports req and returns the assembled dataset. It returns ErrNeedsSplit when the
// API rejects the request as too large. Once a job exists on the server it is removed
// exactly once, whatever the outcome.
func (c *Controller) Run(ctx context.Context, req metrika.Request) (ds *dataset.Dataset, err error) {
	if err := req.Validate(); err != nil {
		return nil, failure.New(failure.Config, "validate request", err)
	}

	j := &job{
		state: StateInit,
		logger: log.With().
			Str("source", string(req.Source)).
			Str("range", req.Range.String()).
			Logger(),
	}

	j.transition(StateEvaluating)
	ev, err := retry.Do(ctx, c.cfg.Retry, "evaluate", func(ctx context.Context) (metrika.Evaluation, error) {
		return c.client.Evaluate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if !ev.Possible {
		j.logger.Info().Int64("max_days", ev.MaxPossibleDayQuantity).Msg("Report cannot be created for this range")
		return nil, ErrNeedsSplit
	}
	j.logger.Info().Msg("The report can be created")

	j.request, err = retry.Do(ctx, c.cfg.Retry, "create", func(ctx context.Context) (metrika.LogRequest, error) {
		return c.client.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	j.transition(StateSubmitted)
	j.logger = j.logger.With().Str("request_id", j.request.ID()).Logger()
	defer c.release(ctx, j)

	if err := c.poll(ctx, j); err != nil {
		return nil, err
	}

	ds, err = c.assemble(ctx, j, req.Fields)
	if err != nil {
		return nil, err
	}
	j.logger.Info().Int("rows", ds.Len()).Int("parts", len(j.request.Parts)).Msg("Report success")
	return ds, nil
}

func (c *Controller) poll(ctx context.Context, j *job) error {
	j.transition(StatePolling)
	id := j.request.ID()
	started := time.Now()

	for {
		st, err := retry.Do(ctx, c.cfg.Retry, "status", func(ctx context.Context) (metrika.LogRequest, error) {
			return c.client.Status(ctx, id)
		})
		if err != nil {
			return err
		}
		j.request = st

		switch st.Status {
		case metrika.StatusProcessed:
			j.transition(StateProcessed)
			return nil
		case metrika.StatusProcessingFailed:
			j.transition(StateFailed)
			j.logger.Error().Msg("Error: processing_failed")
			return failure.New(failure.Remote, "poll", fmt.Errorf("log request %s: %w", id, ErrProcessingFailed))
		}

		j.logger.Info().Str("status", string(st.Status)).Msg("Preparation of the report")
		if c.cfg.MaxWait > 0 && time.Since(started) >= c.cfg.MaxWait {
			return failure.New(failure.Unclassified, "poll", fmt.Errorf("log request %s still %s after %s", id, st.Status, c.cfg.MaxWait))
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return failure.New(failure.Unclassified, "poll", err)
		}
	}
}

// assemble downloads part 0, then the remaining parts in ascending order.
func (c *Controller) assemble(ctx context.Context, j *job, fields []string) (*dataset.Dataset, error) {
	id := j.request.ID()
	numbers := make([]int, 0, len(j.request.Parts))
	for _, p := range j.request.Parts {
		numbers = append(numbers, p.PartNumber)
	}
	slices.Sort(numbers)
	numbers = slices.Compact(numbers)
	if len(numbers) == 0 || numbers[0] != 0 {
		numbers = append([]int{0}, numbers...)
	}
	j.logger.Info().Int("parts", len(numbers)).Msg("Report is ready. Unloading")

	out := dataset.New(fields)
	for _, n := range numbers {
		op := fmt.Sprintf("download part %d", n)
		part, err := retry.Do(ctx, c.cfg.Retry, op, func(ctx context.Context) (*dataset.Dataset, error) {
			return c.client.Download(ctx, id, n, fields)
		})
		if err != nil {
			return nil, err
		}
		if err := out.Append(part); err != nil {
			return nil, failure.New(failure.Remote, op, err)
		}
		j.logger.Info().Int("part", n).Int("rows", part.Len()).Msg("Part processed")
	}
	return out, nil
}

// release removes the server-side job: Clean once the server is done with it, Cancel
// while it is still pending. Failures are logged and never change the outcome.
func (c *Controller) release(ctx context.Context, j *job) {
	timeout := c.cfg.ReleaseTimeout
	if timeout <= 0 {
		timeout = DefaultReleaseTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	policy := c.cfg.Retry
	if policy.MaxElapsed <= 0 || policy.MaxElapsed > timeout {
		policy.MaxElapsed = timeout
	}
	id := j.request.ID()

	op, call := "clean", c.client.Clean
	if !j.request.Status.Done() {
		op, call = "cancel", c.client.Cancel
	}

	err := retry.Run(ctx, policy, op, func(ctx context.Context) error {
		_, err := call(ctx, id)
		return err
	})
	if err != nil {
		j.logger.Warn().Err(err).Str("op", op).Msg("Failed to remove log request from Logs API")
		return
	}
	j.transition(StateDeleted)
	j.logger.Info().Str("op", op).Msg("Log request removed from Logs API")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
