package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/youpoison/YM-Logs-API/internal/archive"
	"github.com/youpoison/YM-Logs-API/internal/config"
	"github.com/youpoison/YM-Logs-API/internal/daterange"
	"github.com/youpoison/YM-Logs-API/internal/failure"
	"github.com/youpoison/YM-Logs-API/internal/lifecycle"
	"github.com/youpoison/YM-Logs-API/internal/logging"
	"github.com/youpoison/YM-Logs-API/internal/metrika"
	"github.com/youpoison/YM-Logs-API/internal/notify"
	"github.com/youpoison/YM-Logs-API/internal/pipeline"
	"github.com/youpoison/YM-Logs-API/internal/sink"
	"github.com/youpoison/YM-Logs-API/internal/splitter"
)

func loadProject(name string) (*config.Project, error) {
	p, err := config.LoadProject(cfg.ProjectsDir, name)
	if err != nil {
		return nil, failure.New(failure.Config, "project", err)
	}
	return p, nil
}

func newClient(p *config.Project) (metrika.Client, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, failure.New(failure.Config, "client", err)
	}
	return metrika.NewClient(metrika.Config{
		BaseURL:           cfg.APIBaseURL,
		Token:             cfg.Token,
		CounterID:         p.Counter,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}), nil
}

// exportOnce wires a pipeline for one run of project and executes job. Every run gets
// its own run id in the log and the journal.
func exportOnce(ctx context.Context, p *config.Project, job pipeline.Job, interval int) error {
	runID := uuid.New().String()
	logging.ForRun(p.Name, runID)
	log.Info().Msg("Start script")

	client, err := newClient(p)
	if err != nil {
		return err
	}

	store, err := sink.Open(ctx, cfg.Sink)
	if err != nil {
		return err
	}
	defer store.Close()

	var archiver pipeline.Archiver
	if cfg.Archive.Enabled() {
		st, err := archive.NewStore(ctx, cfg.Archive)
		if err != nil {
			return failure.New(failure.Config, "archive", err)
		}
		archiver = archive.New(st, p.Name)
	}

	if interval <= 0 {
		interval = p.Interval
	}
	ctrl := lifecycle.NewController(client, lifecycle.Config{PollInterval: cfg.PollInterval})

	pl := pipeline.New(pipeline.Options{
		Project:  p,
		Exporter: splitter.New(ctrl, interval),
		Sink:     store,
		Journal:  store,
		Archiver: archiver,
		Notifier: notify.New(cfg.SMTP),
		RunID:    runID,
	})
	if err := pl.Run(ctx, job); err != nil {
		return err
	}
	log.Info().Msg("Completed successfully!")
	return nil
}

// jobFromFlags validates that exactly one of the date pair or the mode is given.
func jobFromFlags(startDate, endDate, mode, source string) (pipeline.Job, error) {
	var job pipeline.Job

	sources, err := metrika.ParseSources(source)
	if err != nil {
		return job, failure.New(failure.Config, "flags", err)
	}
	job.Sources = sources

	hasDates := startDate != "" || endDate != ""
	switch {
	case hasDates && mode != "":
		return job, failure.New(failure.Config, "flags", errors.New("use either -start_date/-end_date or -mode, not both"))
	case hasDates:
		if startDate == "" || endDate == "" {
			return job, failure.New(failure.Config, "flags", errors.New("both -start_date and -end_date are required"))
		}
		rng, err := daterange.ParseRange(startDate, endDate)
		if err != nil {
			return job, failure.New(failure.Config, "flags", err)
		}
		job.Range = &rng
	case mode != "":
		m, err := daterange.ParseMode(mode)
		if err != nil {
			return job, failure.New(failure.Config, "flags", err)
		}
		job.Mode = m
	default:
		return job, failure.New(failure.Config, "flags", errors.New("either -start_date/-end_date or -mode is required"))
	}
	return job, nil
}
