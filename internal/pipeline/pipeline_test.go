package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/youpoison/YM-Logs-API/internal/config"
	"github.com/youpoison/YM-Logs-API/internal/daterange"
	"github.com/youpoison/YM-Logs-API/internal/failure"
	"github.com/youpoison/YM-Logs-API/internal/lifecycle"
	"github.com/youpoison/YM-Logs-API/internal/metrika"
	"github.com/youpoison/YM-Logs-API/internal/metrika/metrikatest"
	"github.com/youpoison/YM-Logs-API/internal/notify"
	"github.com/youpoison/YM-Logs-API/internal/sink"
	"github.com/youpoison/YM-Logs-API/internal/splitter"
)

type recordingNotifier struct {
	sent []notify.Message
}

func (r *recordingNotifier) Notify(ctx context.Context, msg notify.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

type harness struct {
	fake     *metrikatest.Fake
	store    *sink.Store
	db       *gorm.DB
	notifier *recordingNotifier
	pipeline *Pipeline
	now      time.Time
}

func newHarness(t *testing.T, fake *metrikatest.Fake, now time.Time) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := sink.New(db, 0)
	require.NoError(t, store.Migrate(context.Background()))

	project := &config.Project{
		Name:      "shop",
		Counter:   "26851704",
		Table:     "ym_raw",
		Email:     "owner@example.com",
		StartDate: "2023-03-01",
		EndDate:   "2023-03-03",
		Fields: map[string][]string{
			"hits":   {"ym:pv:date", "ym:pv:clientID"},
			"visits": {"ym:s:date", "ym:s:visitID", "ym:s:pageViews"},
		},
	}
	h := &harness{fake: fake, store: store, db: db, notifier: &recordingNotifier{}, now: now}
	h.pipeline = New(Options{
		Project:  project,
		Exporter: splitter.New(lifecycle.NewController(fake, lifecycle.Config{}), 15),
		Sink:     store,
		Journal:  store,
		Notifier: h.notifier,
		RunID:    "run-1",
		Now:      func() time.Time { return h.now },
	})
	return h
}

func rangeOf(t *testing.T, start, end string) *daterange.Range {
	t.Helper()
	r, err := daterange.ParseRange(start, end)
	require.NoError(t, err)
	return &r
}

func (h *harness) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Table(table).Count(&n).Error)
	return n
}

func TestRun_SingleSource(t *testing.T) {
	h := newHarness(t, &metrikatest.Fake{
		Statuses: []metrika.Status{metrika.StatusProcessing, metrika.StatusProcessed},
	}, time.Now())

	err := h.pipeline.Run(context.Background(), Job{
		Sources: []metrika.Source{metrika.Hits},
		Range:   rangeOf(t, "2023-03-01", "2023-03-01"),
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, h.count(t, "ym_raw"))
	assert.Equal(t, 1, h.fake.Count("clean"))

	runs, err := h.store.Runs(context.Background(), "shop", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sink.RunSucceeded, runs[0].Status)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, 1, runs[0].Rows)

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "owner@example.com", h.notifier.sent[0].To)
	assert.Equal(t, "MetrikaLogsAPI. Data export completed.", h.notifier.sent[0].Subject)
}

func TestRun_AllSourcesGetSuffixedTables(t *testing.T) {
	h := newHarness(t, &metrikatest.Fake{}, time.Now())

	err := h.pipeline.Run(context.Background(), Job{
		Sources: []metrika.Source{metrika.Visits, metrika.Hits},
		Mode:    daterange.History,
	})
	require.NoError(t, err)

	require.Len(t, h.fake.Created, 2)
	assert.Equal(t, metrika.Visits, h.fake.Created[0].Source)
	assert.Equal(t, metrika.Hits, h.fake.Created[1].Source)
	assert.EqualValues(t, 3, h.count(t, "ym_raw_visits"))
	assert.EqualValues(t, 3, h.count(t, "ym_raw_hits"))
}

func TestRun_TableExistsStopsBeforeRemoteWork(t *testing.T) {
	h := newHarness(t, &metrikatest.Fake{}, time.Now())
	require.NoError(t, h.db.Exec("CREATE TABLE ym_raw_hits (x TEXT)").Error)

	err := h.pipeline.Run(context.Background(), Job{
		Sources: []metrika.Source{metrika.Visits, metrika.Hits},
		Range:   rangeOf(t, "2023-03-01", "2023-03-01"),
	})

	assert.True(t, errors.Is(err, sink.ErrTableExists))
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.Equal(t, 0, h.fake.Count("evaluate"))
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "MetrikaLogsAPI. Table creation error.", h.notifier.sent[0].Subject)
}

func TestRun_ProcessingFailed(t *testing.T) {
	h := newHarness(t, &metrikatest.Fake{
		Statuses: []metrika.Status{metrika.StatusProcessingFailed},
	}, time.Now())

	err := h.pipeline.Run(context.Background(), Job{
		Sources: []metrika.Source{metrika.Hits},
		Range:   rangeOf(t, "2023-03-01", "2023-03-01"),
	})

	assert.Equal(t, ExitRemote, ExitCode(err))
	assert.Equal(t, 1, h.fake.Count("clean"))
	exists, _ := h.store.Exists(context.Background(), "ym_raw")
	assert.False(t, exists)

	runs, err := h.store.Runs(context.Background(), "shop", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sink.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "processing failed")

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "MetrikaLogsAPI. processing_failed.", h.notifier.sent[0].Subject)
}

func TestRun_AutoContinuesFromJournal(t *testing.T) {
	now := time.Date(2023, 3, 8, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, &metrikatest.Fake{}, now)
	require.NoError(t, h.store.RecordRun(context.Background(), &sink.ExportRun{
		Project: "shop", Source: "hits", Date1: "2023-03-01", Date2: "2023-03-05", Status: sink.RunSucceeded,
	}))

	err := h.pipeline.Run(context.Background(), Job{Sources: []metrika.Source{metrika.Hits}, Mode: daterange.Auto})
	require.NoError(t, err)

	require.Len(t, h.fake.Created, 1)
	got := h.fake.Created[0].Range
	assert.Equal(t, "2023-03-06", got.Start.Format(daterange.Layout))
	assert.Equal(t, "2023-03-07", got.End.Format(daterange.Layout))
	assert.EqualValues(t, 2, h.count(t, "ym_raw_20230306_20230307"))
}

func TestRun_AutoOnConsecutiveDays(t *testing.T) {
	h := newHarness(t, &metrikatest.Fake{}, time.Date(2023, 3, 8, 9, 0, 0, 0, time.UTC))
	job := Job{Sources: []metrika.Source{metrika.Hits}, Mode: daterange.Auto}

	require.NoError(t, h.pipeline.Run(context.Background(), job))
	h.now = h.now.AddDate(0, 0, 1)
	require.NoError(t, h.pipeline.Run(context.Background(), job))
	// same day again: nothing new, and the existing table is not an error
	require.NoError(t, h.pipeline.Run(context.Background(), job))

	require.Len(t, h.fake.Created, 2)
	assert.EqualValues(t, 1, h.count(t, "ym_raw_20230307_20230307"))
	assert.EqualValues(t, 1, h.count(t, "ym_raw_20230308_20230308"))

	last, err := h.store.LastLoaded(context.Background(), "shop", "hits")
	require.NoError(t, err)
	assert.Equal(t, "2023-03-08", last.Format(daterange.Layout))

	require.Len(t, h.notifier.sent, 2)
	for _, msg := range h.notifier.sent {
		assert.Equal(t, "MetrikaLogsAPI. Data export completed.", msg.Subject)
	}
}

func TestRun_RegularRerunSameDayFails(t *testing.T) {
	h := newHarness(t, &metrikatest.Fake{}, time.Date(2023, 3, 8, 9, 0, 0, 0, time.UTC))
	job := Job{Sources: []metrika.Source{metrika.Visits, metrika.Hits}, Mode: daterange.Regular}

	require.NoError(t, h.pipeline.Run(context.Background(), job))
	assert.EqualValues(t, 1, h.count(t, "ym_raw_visits_20230306_20230306"))
	assert.EqualValues(t, 1, h.count(t, "ym_raw_hits_20230306_20230306"))

	err := h.pipeline.Run(context.Background(), job)
	assert.True(t, errors.Is(err, sink.ErrTableExists))
	assert.Len(t, h.fake.Created, 2)
}

func TestRun_AutoUpToDate(t *testing.T) {
	now := time.Date(2023, 3, 8, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, &metrikatest.Fake{}, now)
	require.NoError(t, h.store.RecordRun(context.Background(), &sink.ExportRun{
		Project: "shop", Source: "hits", Date1: "2023-03-01", Date2: "2023-03-07", Status: sink.RunSucceeded,
	}))

	err := h.pipeline.Run(context.Background(), Job{Sources: []metrika.Source{metrika.Hits}, Mode: daterange.Auto})

	require.NoError(t, err)
	assert.Equal(t, 0, h.fake.Count("evaluate"))
	assert.Empty(t, h.notifier.sent)
}

func TestRun_IntervalTooLarge(t *testing.T) {
	h := newHarness(t, &metrikatest.Fake{Feasible: func(metrika.Request) bool { return false }}, time.Now())

	err := h.pipeline.Run(context.Background(), Job{
		Sources: []metrika.Source{metrika.Hits},
		Range:   rangeOf(t, "2023-01-01", "2023-02-09"),
	})

	assert.True(t, errors.Is(err, splitter.ErrIntervalTooLarge))
	assert.Equal(t, ExitConfig, ExitCode(err))
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "MetrikaLogsAPI. Interval failed.", h.notifier.sent[0].Subject)
}

func TestRun_RequiresSourceAndDates(t *testing.T) {
	h := newHarness(t, &metrikatest.Fake{}, time.Now())

	err := h.pipeline.Run(context.Background(), Job{Range: rangeOf(t, "2023-03-01", "2023-03-01")})
	assert.Equal(t, ExitConfig, ExitCode(err))

	err = h.pipeline.Run(context.Background(), Job{Sources: []metrika.Source{metrika.Hits}})
	assert.Equal(t, ExitConfig, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{failure.New(failure.Config, "op", errors.New("x")), ExitConfig},
		{failure.New(failure.Remote, "op", errors.New("x")), ExitRemote},
		{failure.New(failure.Transient, "op", errors.New("x")), ExitTransient},
		{failure.New(failure.Unclassified, "op", errors.New("x")), ExitFailure},
		{errors.New("plain"), ExitFailure},
		{fmt.Errorf("wrapped: %w", context.Canceled), ExitInterrupted},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFailureMessage_Default(t *testing.T) {
	msg := FailureMessage("t", errors.New("connection refused"))
	assert.Equal(t, "MetrikaLogsAPI. Download failed", msg.Subject)
	assert.Contains(t, msg.Body, "connection refused")
}
