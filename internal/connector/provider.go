package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"corpora/apps/ingest/internal/resilience"
)

// maxProviderDepth caps child-page expansion below a provider item.
const maxProviderDepth = 10

// CredentialSource resolves a stored provider token for a user. The worker
// path passes tokens explicitly instead; lookup is the API-path fallback.
type CredentialSource interface {
	AccessToken(ctx context.Context, userID, provider string) (string, error)
}

// ProviderConnector walks a paginated third-party document API. Items can
// reference child pages; expansion is an iterative breadth-first walk with an
// explicit visited set, so reference cycles terminate and depth is bounded.
type ProviderConnector struct {
	baseURL     string
	provider    string
	credentials CredentialSource
	client      *http.Client
	retry       resilience.Policy
	breaker     *resilience.Breaker
}

func NewProviderConnector(baseURL, provider string, credentials CredentialSource) *ProviderConnector {
	return &ProviderConnector{
		baseURL:     baseURL,
		provider:    provider,
		credentials: credentials,
		client:      &http.Client{Timeout: 30 * time.Second},
		retry:       resilience.DefaultPolicy(),
		breaker:     resilience.NewBreaker(provider+"-api", 5),
	}
}

type providerItem struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	URL      string   `json:"url"`
	ChildIDs []string `json:"child_ids"`
}

func (c *ProviderConnector) Ingest(ctx context.Context, cfg Config) ([]Fragment, error) {
	token, err := c.resolveToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	type workItem struct {
		id    string
		depth int
	}

	var (
		fragments []Fragment
		visited   = map[string]bool{}
		queue     []workItem
	)
	for _, id := range cfg.ItemIDs {
		queue = append(queue, workItem{id: id, depth: 0})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if visited[item.id] || item.depth > maxProviderDepth {
			continue
		}
		visited[item.id] = true

		doc, err := c.fetchItem(ctx, token, item.id)
		if err != nil {
			if errors.Is(err, resilience.ErrBreakerOpen) {
				return fragments, err
			}
			// One bad item never aborts the batch.
			slog.WarnContext(ctx, "skipping provider item", "provider", c.provider, "item_id", item.id, "error", err)
			continue
		}

		fragments = append(fragments, Fragment{
			Title:     doc.Title,
			Content:   doc.Content,
			SourceURL: c.sourceURL(doc),
			Metadata: map[string]any{
				"provider": c.provider,
				"item_id":  doc.ID,
			},
		})

		for _, child := range doc.ChildIDs {
			if !visited[child] {
				queue = append(queue, workItem{id: child, depth: item.depth + 1})
			}
		}
	}

	return fragments, nil
}

// resolveToken prefers an explicit token (worker case), then the stored
// integration (API case). Absence of both is a hard error, never a silent
// fallback.
func (c *ProviderConnector) resolveToken(ctx context.Context, cfg Config) (string, error) {
	if cfg.AccessToken != "" {
		return cfg.AccessToken, nil
	}
	if c.credentials == nil {
		return "", ErrMissingCredentials
	}
	token, err := c.credentials.AccessToken(ctx, cfg.UserID, c.provider)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingCredentials, err)
	}
	if token == "" {
		return "", ErrMissingCredentials
	}
	return token, nil
}

func (c *ProviderConnector) fetchItem(ctx context.Context, token, itemID string) (*providerItem, error) {
	var doc providerItem
	err := c.breaker.Do(func() error {
		return c.retry.Do(ctx, func() error {
			u := fmt.Sprintf("%s/v1/documents/%s", c.baseURL, url.PathEscape(itemID))
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return &resilience.HTTPError{Status: resp.StatusCode, URL: u}
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
			if err != nil {
				return err
			}
			return json.Unmarshal(body, &doc)
		})
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *ProviderConnector) sourceURL(doc *providerItem) string {
	if doc.URL != "" {
		return doc.URL
	}
	return fmt.Sprintf("%s://item/%s", c.provider, doc.ID)
}

// ChangePage is one page of a provider's incremental change feed.
type ChangePage struct {
	Items         []ChangedItem `json:"items"`
	NextPageToken string        `json:"next_page_token"`
}

type ChangedItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
	Deleted bool   `json:"deleted"`
}

// Changes fetches one page of changes since the given cursor. An empty
// NextPageToken on the returned page means the walk is complete.
func (c *ProviderConnector) Changes(ctx context.Context, cfg Config, scope, pageToken string) (*ChangePage, error) {
	token, err := c.resolveToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var page ChangePage
	err = c.breaker.Do(func() error {
		return c.retry.Do(ctx, func() error {
			q := url.Values{}
			if scope != "" {
				q.Set("scope", scope)
			}
			if pageToken != "" {
				q.Set("page_token", pageToken)
			}
			u := fmt.Sprintf("%s/v1/changes?%s", c.baseURL, q.Encode())

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return &resilience.HTTPError{Status: resp.StatusCode, URL: u}
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
			if err != nil {
				return err
			}
			return json.Unmarshal(body, &page)
		})
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}
