package ingest_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpora/apps/ingest/features/crawl"
	"corpora/apps/ingest/features/ingest"
	"corpora/apps/ingest/features/job"
	"corpora/apps/ingest/internal/config"
	"corpora/apps/ingest/internal/worker"
)

type memJobRepo struct {
	jobs map[string]*job.Job
	next int
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[string]*job.Job{}}
}

func (m *memJobRepo) Create(_ context.Context, j *job.Job) error {
	m.next++
	j.ID = string(rune('a' + m.next))
	j.Status = job.StatusPending
	m.jobs[j.ID] = j
	return nil
}

func (m *memJobRepo) Get(_ context.Context, id string) (*job.Job, error) { return m.jobs[id], nil }
func (m *memJobRepo) ListByUser(_ context.Context, _ string) ([]job.Job, error) {
	return nil, nil
}
func (m *memJobRepo) Start(_ context.Context, id string) error {
	m.jobs[id].Status = job.StatusProcessing
	return nil
}
func (m *memJobRepo) Complete(_ context.Context, id string) error {
	m.jobs[id].Status = job.StatusCompleted
	return nil
}
func (m *memJobRepo) Fail(_ context.Context, id, msg string) error {
	m.jobs[id].Status = job.StatusFailed
	m.jobs[id].ErrorMessage = msg
	return nil
}
func (m *memJobRepo) IncrementProcessed(_ context.Context, id string) error {
	if j := m.jobs[id]; j.ProcessedItems < j.TotalItems {
		j.ProcessedItems++
	}
	return nil
}

type memCrawlRepo struct {
	configs map[string]*crawl.Config
	hashes  map[string]bool
}

func newMemCrawlRepo() *memCrawlRepo {
	return &memCrawlRepo{configs: map[string]*crawl.Config{}, hashes: map[string]bool{}}
}

func (m *memCrawlRepo) Create(_ context.Context, c *crawl.Config) error {
	c.ID = "crawl-1"
	c.ContentHash = c.Hash()
	m.configs[c.ID] = c
	m.hashes[c.ContentHash] = true
	return nil
}
func (m *memCrawlRepo) Get(_ context.Context, id string) (*crawl.Config, error) {
	return m.configs[id], nil
}
func (m *memCrawlRepo) ExistsByHash(_ context.Context, hash string) (bool, error) {
	return m.hashes[hash], nil
}
func (m *memCrawlRepo) UpdateStatus(_ context.Context, _, _ string) error    { return nil }
func (m *memCrawlRepo) SetTotalPages(_ context.Context, _ string, _ int) error { return nil }
func (m *memCrawlRepo) IncrementIngested(_ context.Context, _ string) (*crawl.Config, error) {
	return nil, nil
}
func (m *memCrawlRepo) IncrementFailed(_ context.Context, _ string) (*crawl.Config, error) {
	return nil, nil
}
func (m *memCrawlRepo) ListDueForRefresh(_ context.Context, _ time.Time) ([]crawl.Config, error) {
	return nil, nil
}
func (m *memCrawlRepo) MarkRefreshed(_ context.Context, _ string, _ time.Time) error { return nil }

type memPublisher struct {
	topics []string
	bodies [][]byte
}

func (m *memPublisher) Publish(topic string, body []byte) error {
	m.topics = append(m.topics, topic)
	m.bodies = append(m.bodies, body)
	return nil
}

func TestSubmitFile_QueuesTask(t *testing.T) {
	pub := &memPublisher{}
	svc := ingest.NewService(newMemJobRepo(), newMemCrawlRepo(), pub)

	res, err := svc.SubmitFile(context.Background(), ingest.FileRequest{
		UserID:   "u1",
		BlobPath: "u1/report.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusQueued, res.Status)
	assert.NotEmpty(t, res.JobRef)

	require.Equal(t, []string{config.TopicIngestTask}, pub.topics)
	var payload worker.IngestTaskPayload
	require.NoError(t, json.Unmarshal(pub.bodies[0], &payload))
	assert.Equal(t, res.JobRef, payload.JobID)
	assert.Equal(t, "u1/report.pdf", payload.BlobPath)
}

func TestSubmitProvider_Validation(t *testing.T) {
	svc := ingest.NewService(newMemJobRepo(), newMemCrawlRepo(), &memPublisher{})

	_, err := svc.SubmitProvider(context.Background(), ingest.ProviderRequest{UserID: "u1", Provider: "notion"})
	assert.Error(t, err)
}

func TestSubmitSync_QueuesSyncTask(t *testing.T) {
	pub := &memPublisher{}
	svc := ingest.NewService(newMemJobRepo(), newMemCrawlRepo(), pub)

	res, err := svc.SubmitSync(context.Background(), ingest.SyncRequest{
		UserID:      "u1",
		Provider:    "notion",
		FolderScope: "workspace-a",
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusQueued, res.Status)

	require.Equal(t, []string{config.TopicIngestTask}, pub.topics)
	var payload worker.IngestTaskPayload
	require.NoError(t, json.Unmarshal(pub.bodies[0], &payload))
	assert.Equal(t, worker.KindSync, payload.Kind)
	assert.Equal(t, "workspace-a", payload.FolderScope)

	_, err = svc.SubmitSync(context.Background(), ingest.SyncRequest{UserID: "u1"})
	assert.Error(t, err)
}

func TestSubmitCrawl_DuplicateSkipped(t *testing.T) {
	pub := &memPublisher{}
	svc := ingest.NewService(newMemJobRepo(), newMemCrawlRepo(), pub)

	req := ingest.CrawlRequest{
		UserID:    "u1",
		RootURL:   "https://docs.example.com",
		CrawlType: crawl.TypeRecursive,
		MaxDepth:  3,
	}

	first, err := svc.SubmitCrawl(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusQueued, first.Status)

	second, err := svc.SubmitCrawl(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusSkipped, second.Status)

	// Only the first submission reached the queue.
	assert.Equal(t, []string{config.TopicCrawlDiscover}, pub.topics)
}

func TestSubmitCrawl_DepthClampedAndTypeChecked(t *testing.T) {
	crawls := newMemCrawlRepo()
	svc := ingest.NewService(newMemJobRepo(), crawls, &memPublisher{})

	_, err := svc.SubmitCrawl(context.Background(), ingest.CrawlRequest{
		UserID:    "u1",
		RootURL:   "https://example.com",
		CrawlType: "spider",
	})
	assert.Error(t, err)

	res, err := svc.SubmitCrawl(context.Background(), ingest.CrawlRequest{
		UserID:    "u1",
		RootURL:   "https://example.com",
		CrawlType: crawl.TypeRecursive,
		MaxDepth:  25,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, crawls.configs[res.JobRef].MaxDepth)
}
