package syncstate

import (
	"context"
	"fmt"
	"log/slog"

	"corpora/apps/ingest/internal/connector"
)

// ChangeFeed is the provider-side half of an incremental sync: one page of
// changes since a cursor.
type ChangeFeed interface {
	Changes(ctx context.Context, cfg connector.Config, scope, pageToken string) (*connector.ChangePage, error)
}

// Sink applies classified changes. Added and updated both take the replace
// path; the document lifecycle makes re-processing idempotent.
type Sink interface {
	Process(ctx context.Context, userID, provider string, frag connector.Fragment) error
	Remove(ctx context.Context, userID, sourceURL string) error
}

// Manager drives the per-scope sync state machine:
// idle -> in_progress -> {completed | failed}.
type Manager struct {
	repo Repository
	feed ChangeFeed
	sink Sink
}

func NewManager(repo Repository, feed ChangeFeed, sink Sink) *Manager {
	return &Manager{repo: repo, feed: feed, sink: sink}
}

// IncrementalSync walks the provider's change feed from the last persisted
// cursor. Progress is saved after every page, and the scope always leaves
// in_progress: any return path sets completed or failed.
func (m *Manager) IncrementalSync(ctx context.Context, key Key, cfg connector.Config) (err error) {
	state, err := m.repo.Start(ctx, key)
	if err != nil {
		return fmt.Errorf("start sync %s/%s: %w", key.Provider, key.FolderScope, err)
	}

	token := state.NextPageToken
	if token == "" {
		token = state.LastCursor
	}

	defer func() {
		if err != nil {
			if failErr := m.repo.Fail(ctx, key, err.Error()); failErr != nil {
				slog.ErrorContext(ctx, "recording sync failure", "provider", key.Provider, "error", failErr)
			}
			return
		}
		err = m.repo.Complete(ctx, key, token)
	}()

	for {
		page, pageErr := m.feed.Changes(ctx, cfg, key.FolderScope, token)
		if pageErr != nil {
			return fmt.Errorf("fetch changes: %w", pageErr)
		}

		synced := 0
		for _, item := range page.Items {
			if item.Deleted {
				if rmErr := m.sink.Remove(ctx, key.UserID, item.URL); rmErr != nil {
					slog.WarnContext(ctx, "removing deleted item", "item_id", item.ID, "error", rmErr)
				}
				continue
			}
			frag := connector.Fragment{
				Title:     item.Title,
				Content:   item.Content,
				SourceURL: item.URL,
				Metadata:  map[string]any{"provider": key.Provider, "item_id": item.ID},
			}
			if procErr := m.sink.Process(ctx, key.UserID, key.Provider, frag); procErr != nil {
				// One item never aborts the sync.
				slog.WarnContext(ctx, "syncing changed item", "item_id", item.ID, "error", procErr)
				continue
			}
			synced++
		}

		if saveErr := m.repo.SavePage(ctx, key, page.NextPageToken, synced); saveErr != nil {
			return fmt.Errorf("persist sync progress: %w", saveErr)
		}

		if page.NextPageToken == "" {
			return nil
		}
		token = page.NextPageToken
	}
}
