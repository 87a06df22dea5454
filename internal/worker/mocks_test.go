package worker_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"corpora/apps/ingest/features/crawl"
	"corpora/apps/ingest/features/job"
	"corpora/apps/ingest/features/notification"
	"corpora/apps/ingest/features/syncstate"
	"corpora/apps/ingest/internal/connector"
	"corpora/apps/ingest/internal/embedding"
	"corpora/apps/ingest/internal/webcrawl"
)

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Create(ctx context.Context, j *job.Job) error {
	return m.Called(ctx, j).Error(0)
}

func (m *MockJobRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockJobRepo) ListByUser(ctx context.Context, userID string) ([]job.Job, error) {
	args := m.Called(ctx, userID)
	return nil, args.Error(1)
}

func (m *MockJobRepo) Start(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockJobRepo) Complete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockJobRepo) Fail(ctx context.Context, id, errMsg string) error {
	return m.Called(ctx, id, errMsg).Error(0)
}

func (m *MockJobRepo) IncrementProcessed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockCrawlRepo struct{ mock.Mock }

func (m *MockCrawlRepo) Create(ctx context.Context, cfg *crawl.Config) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockCrawlRepo) Get(ctx context.Context, id string) (*crawl.Config, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crawl.Config), args.Error(1)
}

func (m *MockCrawlRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockCrawlRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockCrawlRepo) SetTotalPages(ctx context.Context, id string, total int) error {
	return m.Called(ctx, id, total).Error(0)
}

func (m *MockCrawlRepo) IncrementIngested(ctx context.Context, id string) (*crawl.Config, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crawl.Config), args.Error(1)
}

func (m *MockCrawlRepo) IncrementFailed(ctx context.Context, id string) (*crawl.Config, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crawl.Config), args.Error(1)
}

func (m *MockCrawlRepo) ListDueForRefresh(ctx context.Context, now time.Time) ([]crawl.Config, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]crawl.Config), args.Error(1)
}

func (m *MockCrawlRepo) MarkRefreshed(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type MockNotificationRepo struct{ mock.Mock }

func (m *MockNotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly)
	return nil, args.Error(1)
}

func (m *MockNotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

type MockPipeline struct{ mock.Mock }

func (m *MockPipeline) ProcessFragment(ctx context.Context, userID, sourceType string, priority embedding.Priority, frag connector.Fragment) (string, error) {
	args := m.Called(ctx, userID, sourceType, priority, frag)
	return args.String(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

type MockStagingStore struct{ mock.Mock }

func (m *MockStagingStore) Upload(ctx context.Context, path string, data []byte) error {
	return m.Called(ctx, path, data).Error(0)
}

func (m *MockStagingStore) Download(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStagingStore) Delete(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

type MockSyncer struct{ mock.Mock }

func (m *MockSyncer) IncrementalSync(ctx context.Context, key syncstate.Key, cfg connector.Config) error {
	return m.Called(ctx, key, cfg).Error(0)
}

type MockConnector struct{ mock.Mock }

func (m *MockConnector) Ingest(ctx context.Context, cfg connector.Config) ([]connector.Fragment, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]connector.Fragment), args.Error(1)
}

type MockDiscoverer struct{ mock.Mock }

func (m *MockDiscoverer) Discover(ctx context.Context, spec webcrawl.Spec) ([]string, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockFetcher struct{ mock.Mock }

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (*webcrawl.Page, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webcrawl.Page), args.Error(1)
}

type stubRobots struct{ allowed bool }

func (s stubRobots) Allowed(context.Context, string) bool { return s.allowed }

type stubLimiter struct{ allowed bool }

func (s stubLimiter) Allow(context.Context, string) bool { return s.allowed }
