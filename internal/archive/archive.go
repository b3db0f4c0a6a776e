// Package archive keeps a gzip-compressed TSV copy of every exported dataset, on the
// local filesystem or in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/youpoison/YM-Logs-API/internal/dataset"
	"github.com/youpoison/YM-Logs-API/internal/daterange"
)

// Store writes one object.
type Store interface {
	Put(ctx context.Context, key string, body []byte) (location string, err error)
}

// Config selects the archive backend. Endpoint wins over Dir; neither disables archiving.
type Config struct {
	Dir string

	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether any backend is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != "" || c.Dir != ""
}

// NewStore builds the configured backend.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch {
	case cfg.Endpoint != "":
		return NewS3Store(ctx, cfg)
	case cfg.Dir != "":
		return NewLocalStore(cfg.Dir), nil
	default:
		return nil, errors.New("archive is not configured")
	}
}

// Archiver files datasets under <project>/<source>/<date1>_<date2>.tsv.gz.
type Archiver struct {
	store   Store
	project string
}

// New creates an Archiver for project.
func New(store Store, project string) *Archiver {
	return &Archiver{store: store, project: project}
}

// Key returns the object key of a dataset.
func Key(project, source string, rng daterange.Range) string {
	name := fmt.Sprintf("%s_%s.tsv.gz", rng.Start.Format(daterange.Layout), rng.End.Format(daterange.Layout))
	return path.Join(project, source, name)
}

// Archive compresses ds and stores it. It returns where the object was written.
func (a *Archiver) Archive(ctx context.Context, source string, rng daterange.Range, ds *dataset.Dataset) (string, error) {
	body, err := Encode(ds)
	if err != nil {
		return "", err
	}
	loc, err := a.store.Put(ctx, Key(a.project, source, rng), body)
	if err != nil {
		return "", fmt.Errorf("failed to archive dataset: %w", err)
	}
	log.Info().Str("location", loc).Int("bytes", len(body)).Msg("Dataset archived")
	return loc, nil
}

// Encode renders ds as gzip-compressed TSV with a header row.
func Encode(ds *dataset.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if err := ds.WriteTSV(zw); err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress dataset: %w", err)
	}
	return buf.Bytes(), nil
}
