// Package pipeline is the top-level export run: it checks destinations, exports each
// source, stores and archives the result, journals the run and notifies the owner.
// It never exits the process; callers map the returned error to an exit code.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/youpoison/YM-Logs-API/internal/config"
	"github.com/youpoison/YM-Logs-API/internal/dataset"
	"github.com/youpoison/YM-Logs-API/internal/daterange"
	"github.com/youpoison/YM-Logs-API/internal/failure"
	"github.com/youpoison/YM-Logs-API/internal/metrika"
	"github.com/youpoison/YM-Logs-API/internal/notify"
	"github.com/youpoison/YM-Logs-API/internal/sink"
)

// Exporter returns every row of a request, splitting it when needed.
type Exporter interface {
	Export(ctx context.Context, req metrika.Request) (*dataset.Dataset, error)
}

// Sink is the warehouse.
type Sink interface {
	Exists(ctx context.Context, table string) (bool, error)
	Write(ctx context.Context, table string, ds *dataset.Dataset) error
}

// Journal records export runs.
type Journal interface {
	RecordRun(ctx context.Context, run *sink.ExportRun) error
	LastLoaded(ctx context.Context, project, source string) (time.Time, error)
}

// Archiver keeps a copy of exported datasets.
type Archiver interface {
	Archive(ctx context.Context, source string, rng daterange.Range, ds *dataset.Dataset) (string, error)
}

// Options wires a Pipeline. Journal and Archiver are optional.
type Options struct {
	Project  *config.Project
	Exporter Exporter
	Sink     Sink
	Journal  Journal
	Archiver Archiver
	Notifier notify.Notifier
	RunID    string
	Now      func() time.Time
}

// Job selects what to export: an explicit Range, or a Mode resolved against today.
type Job struct {
	Sources []metrika.Source
	Range   *daterange.Range
	Mode    daterange.Mode
}

// Pipeline runs jobs for a single project.
type Pipeline struct {
	opts Options
}

func New(opts Options) *Pipeline {
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{opts: opts}
}

// Run exports every source of job in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context, job Job) error {
	if len(job.Sources) == 0 {
		return failure.New(failure.Config, "run", errors.New("no source selected"))
	}
	if job.Range == nil && job.Mode == "" {
		return failure.New(failure.Config, "run", errors.New("either a date range or a mode is required"))
	}
	multi := len(job.Sources) > 1

	// ranges are resolved first since recurring runs name their table after them
	var targets []target
	for _, src := range job.Sources {
		rng, err := p.resolveRange(ctx, job, src)
		if errors.Is(err, daterange.ErrNothingToLoad) {
			log.Info().Str("source", string(src)).Msg("Already up to date, nothing to load")
			continue
		}
		if err != nil {
			return failure.Wrap("resolve dates", err)
		}
		targets = append(targets, target{source: src, rng: rng, table: p.tableFor(job, src, multi, rng)})
	}

	// every destination is checked before any remote work begins
	for _, t := range targets {
		exists, err := p.opts.Sink.Exists(ctx, t.table)
		if err != nil {
			return failure.New(failure.Unclassified, "check table", err)
		}
		if exists {
			log.Warn().Str("table", t.table).Msg("Table already exists")
			err := failure.New(failure.Config, "check table", fmt.Errorf("%s: %w", t.table, sink.ErrTableExists))
			p.notifyFailure(ctx, t.table, err)
			return err
		}
	}

	for _, t := range targets {
		if err := p.runSource(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

type target struct {
	source metrika.Source
	rng    daterange.Range
	table  string
}

// tableFor keeps the configured name for explicit ranges and history loads.
// Regular and auto runs repeat, so each gets a table dated by its range.
func (p *Pipeline) tableFor(job Job, src metrika.Source, multi bool, rng daterange.Range) string {
	if job.Range != nil || job.Mode == daterange.History {
		return p.opts.Project.TableFor(src, multi)
	}
	return p.opts.Project.DatedTableFor(src, multi, rng)
}

func (p *Pipeline) runSource(ctx context.Context, t target) error {
	src, rng, table := t.source, t.rng, t.table
	logger := log.With().Str("source", string(src)).Str("table", table).Logger()

	fields, err := p.opts.Project.FieldsFor(src)
	if err != nil {
		return failure.New(failure.Config, "fields", err)
	}

	run := &sink.ExportRun{
		RunID:       p.opts.RunID,
		Project:     p.opts.Project.Name,
		Source:      string(src),
		Destination: table,
		Date1:       rng.Start.Format(daterange.Layout),
		Date2:       rng.End.Format(daterange.Layout),
		StartedAt:   p.opts.Now().UTC(),
	}
	logger.Info().Str("range", rng.String()).Int("fields", len(fields)).Msg("Export started")

	req := metrika.Request{Fields: fields, Source: src, Range: rng}
	ds, err := p.opts.Exporter.Export(ctx, req)
	if err != nil {
		p.fail(ctx, run, table, err)
		return err
	}

	if p.opts.Archiver != nil {
		if _, err := p.opts.Archiver.Archive(ctx, string(src), rng, ds); err != nil {
			logger.Warn().Err(err).Msg("Archive failed, continuing with the warehouse write")
		}
	}

	if err := p.opts.Sink.Write(ctx, table, ds); err != nil {
		p.fail(ctx, run, table, err)
		return err
	}

	run.Rows = ds.Len()
	run.Status = sink.RunSucceeded
	p.record(ctx, run)
	logger.Info().Int("rows", ds.Len()).Msg("Done!")

	p.send(ctx, notify.Message{
		Subject: "MetrikaLogsAPI. Data export completed.",
		Body:    fmt.Sprintf("Data export completed.\n%d rows for %s are in table %s.", ds.Len(), rng, table),
	})
	return nil
}

func (p *Pipeline) resolveRange(ctx context.Context, job Job, src metrika.Source) (daterange.Range, error) {
	if job.Range != nil {
		return *job.Range, nil
	}

	var in daterange.ModeInputs
	switch job.Mode {
	case daterange.History:
		h, err := p.opts.Project.HistoryRange()
		if err != nil {
			return daterange.Range{}, failure.New(failure.Config, "history range", err)
		}
		in.History = h
	case daterange.Auto:
		if p.opts.Journal != nil {
			last, err := p.opts.Journal.LastLoaded(ctx, p.opts.Project.Name, string(src))
			if err != nil {
				return daterange.Range{}, err
			}
			in.LastLoaded = last
		}
	}
	return daterange.ForMode(job.Mode, p.opts.Now(), in)
}

func (p *Pipeline) fail(ctx context.Context, run *sink.ExportRun, table string, err error) {
	run.Status = sink.RunFailed
	run.Error = err.Error()
	p.record(ctx, run)
	p.notifyFailure(ctx, table, err)
}

func (p *Pipeline) record(ctx context.Context, run *sink.ExportRun) {
	if p.opts.Journal == nil {
		return
	}
	run.FinishedAt = p.opts.Now().UTC()
	if err := p.opts.Journal.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn().Err(err).Msg("Failed to record export run")
	}
}

func (p *Pipeline) notifyFailure(ctx context.Context, table string, err error) {
	p.send(ctx, FailureMessage(table, err))
}

func (p *Pipeline) send(ctx context.Context, msg notify.Message) {
	msg.To = p.opts.Project.Email
	if msg.To == "" {
		log.Debug().Str("subject", msg.Subject).Msg("Project has no email, notification skipped")
		return
	}
	if err := p.opts.Notifier.Notify(context.WithoutCancel(ctx), msg); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to send notification")
	}
}
