// Package worker runs the background half of the pipeline: NSQ consumers for
// ingestion tasks, crawl discovery, per-page crawl work, and outcome
// notifications. The submitting request path only enqueues; everything heavy
// happens here.
package worker

import (
	"encoding/json"

	"corpora/apps/ingest/internal/config"
)

// Publisher is the outbound queue capability, satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// KindSync runs an incremental provider sync instead of a one-shot ingest.
// File and provider kinds come from the connector enum.
const KindSync = "sync"

// IngestTaskPayload drives one file ingestion, provider ingestion, or
// incremental sync job.
type IngestTaskPayload struct {
	JobID         string   `json:"job_id"`
	UserID        string   `json:"user_id"`
	Provider      string   `json:"provider"`
	Kind          string   `json:"kind"`
	ItemIDs       []string `json:"item_ids,omitempty"`
	BlobPath      string   `json:"blob_path,omitempty"`
	FolderScope   string   `json:"folder_scope,omitempty"`
	AccessToken   string   `json:"access_token,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// CrawlDiscoverPayload resolves one crawl submission into page tasks.
type CrawlDiscoverPayload struct {
	CrawlID       string `json:"crawl_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// CrawlPagePayload is one independently scheduled page fetch.
type CrawlPagePayload struct {
	CrawlID       string `json:"crawl_id"`
	UserID        string `json:"user_id"`
	URL           string `json:"url"`
	RespectRobots bool   `json:"respect_robots_txt"`
	Priority      string `json:"priority,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// OutcomePayload reports a finished job or crawl for the notification feed.
type OutcomePayload struct {
	UserID        string `json:"user_id"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	Type          string `json:"type"`
	JobID         string `json:"job_id,omitempty"`
	CrawlID       string `json:"crawl_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// PublishOutcome is best-effort: a notification must never fail the pipeline,
// so marshal or publish errors are returned for logging only.
func PublishOutcome(pub Publisher, payload OutcomePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return pub.Publish(config.TopicIngestOutcome, body)
}
