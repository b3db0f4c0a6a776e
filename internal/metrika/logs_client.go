package metrika

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/youpoison/YM-Logs-API/internal/dataset"
	"github.com/youpoison/YM-Logs-API/internal/failure"
)

// APIError is a non-2xx answer of the Logs API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Logs API returned status %d: %s", e.StatusCode, e.Message)
}

type logsClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewLogsClient creates the HTTP implementation of Client.
func NewLogsClient(cfg Config) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &logsClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

func (c *logsClient) Evaluate(ctx context.Context, req Request) (Evaluation, error) {
	var env evaluationEnvelope
	if err := c.doJSON(ctx, "evaluate", http.MethodGet, "/logrequests/evaluate", req.Values(), &env); err != nil {
		return Evaluation{}, err
	}
	return env.Evaluation, nil
}

func (c *logsClient) Create(ctx context.Context, req Request) (LogRequest, error) {
	var env logRequestEnvelope
	if err := c.doJSON(ctx, "create", http.MethodPost, "/logrequests", req.Values(), &env); err != nil {
		return LogRequest{}, err
	}
	log.Info().Str("request_id", env.LogRequest.ID()).Msg("Log request created")
	return env.LogRequest, nil
}

func (c *logsClient) Status(ctx context.Context, id string) (LogRequest, error) {
	var env logRequestEnvelope
	if err := c.doJSON(ctx, "status", http.MethodGet, "/logrequest/"+url.PathEscape(id), nil, &env); err != nil {
		return LogRequest{}, err
	}
	return env.LogRequest, nil
}

func (c *logsClient) Download(ctx context.Context, id string, part int, columns []string) (*dataset.Dataset, error) {
	op := fmt.Sprintf("download part %d", part)
	body, err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/logrequest/%s/part/%d/download", url.PathEscape(id), part), nil)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.ReadTSV(bytes.NewReader(body), columns)
	if err != nil {
		return nil, failure.New(failure.Remote, op, fmt.Errorf("failed to parse part: %w", err))
	}
	log.Debug().Str("request_id", id).Int("part", part).Int("rows", ds.Len()).Msg("Part downloaded")
	return ds, nil
}

func (c *logsClient) Clean(ctx context.Context, id string) (LogRequest, error) {
	var env logRequestEnvelope
	if err := c.doJSON(ctx, "clean", http.MethodPost, "/logrequest/"+url.PathEscape(id)+"/clean", nil, &env); err != nil {
		return LogRequest{}, err
	}
	return env.LogRequest, nil
}

func (c *logsClient) Cancel(ctx context.Context, id string) (LogRequest, error) {
	var env logRequestEnvelope
	if err := c.doJSON(ctx, "cancel", http.MethodPost, "/logrequest/"+url.PathEscape(id)+"/cancel", nil, &env); err != nil {
		return LogRequest{}, err
	}
	return env.LogRequest, nil
}

func (c *logsClient) List(ctx context.Context) ([]LogRequest, error) {
	var env listEnvelope
	if err := c.doJSON(ctx, "list", http.MethodGet, "/logrequests", nil, &env); err != nil {
		return nil, err
	}
	return env.Requests, nil
}

func (c *logsClient) doJSON(ctx context.Context, op, method, path string, query url.Values, out any) error {
	body, err := c.do(ctx, op, method, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return failure.New(failure.Unclassified, op, fmt.Errorf("failed to decode Logs API response: %w", err))
	}
	return nil
}

// do performs one request and reads the whole body. A body cut short mid-transfer is
// reported as a Transient failure; status codes are mapped to failure kinds.
func (c *logsClient) do(ctx context.Context, op, method, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, failure.New(failure.Unclassified, op, fmt.Errorf("rate limiter: %w", err))
	}

	reqURL := fmt.Sprintf("%s/management/v1/counter/%s%s", strings.TrimSuffix(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.CounterID), path)
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	log.Debug().Str("method", method).Str("url", reqURL).Msg("Logs API request")

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, failure.New(failure.Unclassified, op, err)
	}
	req.Header.Set("Authorization", "OAuth "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.New(transportKind(err, failure.Unclassified), op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.New(transportKind(err, failure.Transient), op, fmt.Errorf("response interrupted: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
		switch {
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return nil, failure.New(failure.Config, op, fmt.Errorf("Logs API authentication failed, check YM_TOKEN and counter access: %w", apiErr))
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, failure.New(failure.Unclassified, op, apiErr)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, failure.New(failure.Remote, op, apiErr)
		default:
			return nil, failure.New(failure.Unclassified, op, apiErr)
		}
	}
	return body, nil
}

// transportKind classifies a transport error. Timeouts and cancellation are never
// retried; a truncated or reset connection always is.
func transportKind(err error, fallback failure.Kind) failure.Kind {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failure.Unclassified
	case errors.As(err, &netErr) && netErr.Timeout():
		return failure.Unclassified
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET):
		return failure.Transient
	}
	return fallback
}

func errorMessage(body []byte) string {
	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Message == "" {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return msg
	}
	if len(e.Errors) > 0 && e.Errors[0].ErrorType != "" {
		return e.Errors[0].ErrorType + ": " + e.Message
	}
	return e.Message
}
