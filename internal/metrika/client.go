package metrika

import (
	"context"
	"net/http"
	"time"

	"github.com/youpoison/YM-Logs-API/internal/dataset"
)

// DefaultBaseURL is the Yandex Metrika management API host.
const DefaultBaseURL = "https://api-metrika.yandex.net"

// Client is the interface for the Logs API of one counter.
type Client interface {
	Evaluate(ctx context.Context, req Request) (Evaluation, error)
	Create(ctx context.Context, req Request) (LogRequest, error)
	Status(ctx context.Context, id string) (LogRequest, error)
	Download(ctx context.Context, id string, part int, columns []string) (*dataset.Dataset, error)
	Clean(ctx context.Context, id string) (LogRequest, error)
	Cancel(ctx context.Context, id string) (LogRequest, error)
	List(ctx context.Context) ([]LogRequest, error)
}

// Config holds the connection settings for the Logs API.
type Config struct {
	BaseURL   string
	Token     string
	CounterID string

	// Performance Settings
	RequestsPerSecond float64
	Timeout           time.Duration

	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper
}

// NewClient creates a Logs API client for the configured counter.
func NewClient(cfg Config) Client {
	return NewLogsClient(cfg)
}
