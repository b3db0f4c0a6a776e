package lifecycle

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/youpoison/YM-Logs-API/internal/metrika"
	"github.com/youpoison/YM-Logs-API/internal/retry"
)

// Purge removes every log request the counter still holds: finished ones are cleaned,
// pending ones cancelled. It returns how many were removed. Individual failures are
// logged and do not stop the others.
func Purge(ctx context.Context, client metrika.Client, concurrency int, policy retry.Policy) (int, error) {
	requests, err := retry.Do(ctx, policy, "list", func(ctx context.Context) ([]metrika.LogRequest, error) {
		return client.List(ctx)
	})
	if err != nil {
		return 0, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, r := range requests {
		op, call := "clean", client.Clean
		switch r.Status {
		case metrika.StatusCanceled, metrika.StatusCleanedByUser, metrika.StatusCleanedAsTooOld:
			continue
		case metrika.StatusProcessed, metrika.StatusProcessingFailed:
		default:
			op, call = "cancel", client.Cancel
		}

		id := r.ID()
		g.Go(func() error {
			err := retry.Run(gctx, policy, op, func(ctx context.Context) error {
				_, err := call(ctx, id)
				return err
			})
			if err != nil {
				log.Warn().Err(err).Str("request_id", id).Str("op", op).Msg("Failed to remove log request")
				return nil
			}
			removed.Add(1)
			log.Info().Str("request_id", id).Str("op", op).Msg("Delete log id")
			return nil
		})
	}
	err = g.Wait()
	return int(removed.Load()), err
}
