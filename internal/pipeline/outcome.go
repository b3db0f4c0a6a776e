package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/youpoison/YM-Logs-API/internal/failure"
	"github.com/youpoison/YM-Logs-API/internal/lifecycle"
	"github.com/youpoison/YM-Logs-API/internal/notify"
	"github.com/youpoison/YM-Logs-API/internal/sink"
	"github.com/youpoison/YM-Logs-API/internal/splitter"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitRemote      = 3
	ExitTransient   = 4
	ExitInterrupted = 130
)

// ExitCode maps the outcome of a run to the process exit status. Configuration
// failures are the ones an operator can fix and re-run.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	switch failure.KindOf(err) {
	case failure.Config:
		return ExitConfig
	case failure.Remote:
		return ExitRemote
	case failure.Transient:
		return ExitTransient
	default:
		return ExitFailure
	}
}

// FailureMessage builds the owner notification for a failed export.
func FailureMessage(table string, err error) notify.Message {
	switch {
	case errors.Is(err, sink.ErrTableExists):
		return notify.Message{
			Subject: "MetrikaLogsAPI. Table creation error.",
			Body:    fmt.Sprintf("Table %s already exists in the warehouse.\nRename the table and run the export again.", table),
		}
	case errors.Is(err, splitter.ErrIntervalTooLarge):
		return notify.Message{
			Subject: "MetrikaLogsAPI. Interval failed.",
			Body:    fmt.Sprintf("The report cannot be created, the export interval must be reduced.\n%v", err),
		}
	case errors.Is(err, lifecycle.ErrProcessingFailed):
		return notify.Message{
			Subject: "MetrikaLogsAPI. processing_failed.",
			Body:    "Logs API returned processing_failed.\nThe report cannot be created, run the export again.",
		}
	default:
		return notify.Message{
			Subject: "MetrikaLogsAPI. Download failed",
			Body:    fmt.Sprintf("The report export failed.\n%v", err),
		}
	}
}
