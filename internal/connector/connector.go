// Package connector normalizes heterogeneous sources (staged files, web
// pages, paginated document providers) into text fragments for the pipeline.
package connector

import (
	"context"
	"errors"
)

// Kind is the closed set of supported sources. Dispatch is by enum, not by
// arbitrary string lookup: unknown kinds are a typed error at the boundary.
type Kind string

const (
	KindFile     Kind = "file"
	KindWeb      Kind = "web"
	KindProvider Kind = "provider"
)

var (
	ErrUnknownKind = errors.New("unknown connector kind")

	// ErrMissingCredentials means neither an explicit token nor a stored
	// integration exists. Not retryable; the consumer should prompt for
	// re-authorization.
	ErrMissingCredentials = errors.New("missing provider credentials")

	// ErrEmptyFragment marks a fragment with no indexable content. Consumers
	// skip these without counting them as failures.
	ErrEmptyFragment = errors.New("fragment has no content")
)

// Fragment is one unit of extracted, un-chunked text plus metadata.
type Fragment struct {
	Title     string
	Content   string
	SourceURL string
	Metadata  map[string]any
}

// Config carries everything a connector needs for one ingest call. Calls are
// idempotent at the fragment level: re-ingesting the same item replaces the
// prior document downstream rather than duplicating it.
type Config struct {
	UserID      string
	ItemIDs     []string
	BlobPath    string
	URL         string
	AccessToken string
}

type Connector interface {
	Ingest(ctx context.Context, cfg Config) ([]Fragment, error)
}

// Registry maps each kind to its connector at construction time.
type Registry struct {
	file     Connector
	web      Connector
	provider Connector
}

func NewRegistry(file, web, provider Connector) *Registry {
	return &Registry{file: file, web: web, provider: provider}
}

func (r *Registry) ForKind(k Kind) (Connector, error) {
	switch k {
	case KindFile:
		return r.file, nil
	case KindWeb:
		return r.web, nil
	case KindProvider:
		return r.provider, nil
	default:
		return nil, ErrUnknownKind
	}
}
