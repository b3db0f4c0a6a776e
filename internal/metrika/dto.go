// Package metrika talks to the Yandex Metrika Logs API: evaluate, create, poll,
// download and clean log requests.
package metrika

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/youpoison/YM-Logs-API/internal/daterange"
)

// Source is the kind of raw data a log request exports.
type Source string

const (
	Hits   Source = "hits"
	Visits Source = "visits"
)

// ParseSources expands the CLI source argument; "all" yields visits then hits.
func ParseSources(s string) ([]Source, error) {
	switch s {
	case string(Hits):
		return []Source{Hits}, nil
	case string(Visits):
		return []Source{Visits}, nil
	case "all":
		return []Source{Visits, Hits}, nil
	}
	return nil, fmt.Errorf("wrong source %q, expected hits, visits or all", s)
}

// Status is the processing state of a log request.
type Status string

const (
	StatusCreated          Status = "created"
	StatusProcessing       Status = "processing"
	StatusProcessed        Status = "processed"
	StatusProcessingFailed Status = "processing_failed"
	StatusCanceled         Status = "canceled"
	StatusCleanedByUser    Status = "cleaned_by_user"
	StatusCleanedAsTooOld  Status = "cleaned_automatically_as_too_old"
	StatusAwaitingRetry    Status = "awaiting_retry"
)

// Done reports whether the server finished working on the request, successfully or not.
// Done requests are removed with Clean, pending ones with Cancel.
func (s Status) Done() bool {
	return s == StatusProcessed || s == StatusProcessingFailed
}

// Request describes one export: which fields of which source over which days.
type Request struct {
	Fields []string
	Source Source
	Range  daterange.Range
}

// Validate checks what can be checked locally. Field names are validated by the API.
func (r Request) Validate() error {
	if len(r.Fields) == 0 {
		return errors.New("field list is empty")
	}
	if r.Source != Hits && r.Source != Visits {
		return fmt.Errorf("unknown source %q", r.Source)
	}
	if r.Range.End.Before(r.Range.Start) {
		return fmt.Errorf("end date %s is before start date %s",
			r.Range.End.Format(daterange.Layout), r.Range.Start.Format(daterange.Layout))
	}
	return nil
}

// WithRange returns a copy of r restricted to another range.
func (r Request) WithRange(rng daterange.Range) Request {
	r.Range = rng
	return r
}

// Values encodes r as Logs API query parameters.
func (r Request) Values() url.Values {
	v := url.Values{}
	v.Set("fields", strings.Join(r.Fields, ","))
	v.Set("source", string(r.Source))
	v.Set("date1", r.Range.Start.Format(daterange.Layout))
	v.Set("date2", r.Range.End.Format(daterange.Layout))
	return v
}

// Evaluation is the answer of a feasibility check.
type Evaluation struct {
	Possible               bool  `json:"possible"`
	MaxPossibleDayQuantity int64 `json:"max_possible_day_quantity"`
}

// Part is one downloadable segment of a processed log request.
type Part struct {
	PartNumber int   `json:"part_number"`
	Size       int64 `json:"size"`
}

// LogRequest is a server-side export job.
type LogRequest struct {
	RequestID json.Number `json:"request_id"`
	CounterID json.Number `json:"counter_id"`
	Source    Source      `json:"source"`
	Date1     string      `json:"date1"`
	Date2     string      `json:"date2"`
	Fields    []string    `json:"fields"`
	Status    Status      `json:"status"`
	Size      int64       `json:"size"`
	Parts     []Part      `json:"parts"`
}

// ID returns the opaque request identifier.
func (r LogRequest) ID() string {
	return r.RequestID.String()
}

type logRequestEnvelope struct {
	LogRequest LogRequest `json:"log_request"`
}

type evaluationEnvelope struct {
	Evaluation Evaluation `json:"log_request_evaluation"`
}

type listEnvelope struct {
	Requests []LogRequest `json:"requests"`
}

// apiErrorBody is the error document returned with non-2xx answers.
type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Errors  []struct {
		ErrorType string `json:"error_type"`
		Message   string `json:"message"`
	} `json:"errors"`
}
