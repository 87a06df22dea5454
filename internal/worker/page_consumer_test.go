package worker_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"corpora/apps/ingest/features/crawl"
	"corpora/apps/ingest/internal/config"
	"corpora/apps/ingest/internal/connector"
	"corpora/apps/ingest/internal/webcrawl"
	"corpora/apps/ingest/internal/worker"
)

func pageMessage(t *testing.T, payload worker.CrawlPagePayload) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	assert.NoError(t, err)
	return &nsq.Message{Body: body}
}

type requeueDelegate struct {
	requeued bool
	delay    time.Duration
}

func (d *requeueDelegate) OnFinish(*nsq.Message) {}
func (d *requeueDelegate) OnTouch(*nsq.Message)  {}
func (d *requeueDelegate) OnRequeue(_ *nsq.Message, delay time.Duration, _ bool) {
	d.requeued = true
	d.delay = delay
}

func TestPageConsumer_IngestsAndCounts(t *testing.T) {
	crawls := new(MockCrawlRepo)
	fetcher := new(MockFetcher)
	pipeline := new(MockPipeline)
	pub := new(MockPublisher)

	fetcher.On("Fetch", mock.Anything, "https://docs.example.com/a").Return(&webcrawl.Page{
		URL:     "https://docs.example.com/a",
		Title:   "A",
		Content: "page body",
	}, nil)
	pipeline.On("ProcessFragment", mock.Anything, "u1", "web", mock.Anything, mock.Anything).Return("doc-1", nil)
	crawls.On("IncrementIngested", mock.Anything, "crawl-1").Return(&crawl.Config{
		ID: "crawl-1", PagesIngested: 1, TotalPages: 3, Status: crawl.StatusCrawling,
	}, nil)

	consumer := worker.NewPageConsumer(crawls, stubRobots{allowed: true}, stubLimiter{allowed: true}, fetcher, pipeline, pub)
	err := consumer.HandleMessage(pageMessage(t, worker.CrawlPagePayload{
		CrawlID:       "crawl-1",
		UserID:        "u1",
		URL:           "https://docs.example.com/a",
		RespectRobots: true,
	}))

	assert.NoError(t, err)
	crawls.AssertExpectations(t)
	// Not the last page; no completion yet.
	crawls.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestPageConsumer_LastPageCompletesCrawl(t *testing.T) {
	crawls := new(MockCrawlRepo)
	fetcher := new(MockFetcher)
	pipeline := new(MockPipeline)
	pub := new(MockPublisher)

	fetcher.On("Fetch", mock.Anything, mock.Anything).Return(&webcrawl.Page{
		URL: "https://docs.example.com/z", Title: "Z", Content: "final page",
	}, nil)
	pipeline.On("ProcessFragment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("doc-9", nil)
	crawls.On("IncrementIngested", mock.Anything, "crawl-1").Return(&crawl.Config{
		ID: "crawl-1", PagesIngested: 2, PagesFailed: 1, TotalPages: 3, Status: crawl.StatusCrawling,
	}, nil)
	crawls.On("UpdateStatus", mock.Anything, "crawl-1", crawl.StatusCompleted).Return(nil)
	pub.On("Publish", config.TopicIngestOutcome, mock.MatchedBy(func(b []byte) bool {
		var p worker.OutcomePayload
		return json.Unmarshal(b, &p) == nil && p.Message == "2 of 3 pages ingested"
	})).Return(nil)

	consumer := worker.NewPageConsumer(crawls, stubRobots{allowed: true}, stubLimiter{allowed: true}, fetcher, pipeline, pub)
	err := consumer.HandleMessage(pageMessage(t, worker.CrawlPagePayload{
		CrawlID: "crawl-1", UserID: "u1", URL: "https://docs.example.com/z",
	}))

	assert.NoError(t, err)
	crawls.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestPageConsumer_RobotsDisallowedCountsAsFailed(t *testing.T) {
	crawls := new(MockCrawlRepo)
	pipeline := new(MockPipeline)

	crawls.On("IncrementFailed", mock.Anything, "crawl-1").Return(&crawl.Config{
		ID: "crawl-1", PagesFailed: 1, TotalPages: 3, Status: crawl.StatusCrawling,
	}, nil)

	consumer := worker.NewPageConsumer(crawls, stubRobots{allowed: false}, stubLimiter{allowed: true}, new(MockFetcher), pipeline, new(MockPublisher))
	err := consumer.HandleMessage(pageMessage(t, worker.CrawlPagePayload{
		CrawlID: "crawl-1", UserID: "u1", URL: "https://docs.example.com/private", RespectRobots: true,
	}))

	assert.NoError(t, err)
	crawls.AssertExpectations(t)
	pipeline.AssertNotCalled(t, "ProcessFragment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPageConsumer_ThrottledPageRequeues(t *testing.T) {
	crawls := new(MockCrawlRepo)
	pipeline := new(MockPipeline)

	consumer := worker.NewPageConsumer(crawls, stubRobots{allowed: true}, stubLimiter{allowed: false}, new(MockFetcher), pipeline, new(MockPublisher))

	delegate := &requeueDelegate{}
	msg := pageMessage(t, worker.CrawlPagePayload{
		CrawlID: "crawl-1", UserID: "u1", URL: "https://docs.example.com/a",
	})
	msg.Delegate = delegate

	err := consumer.HandleMessage(msg)

	assert.NoError(t, err)
	assert.True(t, delegate.requeued)
	// Throttling consumes neither a success nor a failure.
	crawls.AssertNotCalled(t, "IncrementFailed", mock.Anything, mock.Anything)
	crawls.AssertNotCalled(t, "IncrementIngested", mock.Anything, mock.Anything)
}

func TestPageConsumer_EmptyContentSkipsWithoutFailure(t *testing.T) {
	crawls := new(MockCrawlRepo)
	fetcher := new(MockFetcher)
	pipeline := new(MockPipeline)

	fetcher.On("Fetch", mock.Anything, mock.Anything).Return(&webcrawl.Page{
		URL: "https://docs.example.com/empty", Title: "Empty", Content: "   ",
	}, nil)
	pipeline.On("ProcessFragment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", connector.ErrEmptyFragment)
	crawls.On("IncrementIngested", mock.Anything, "crawl-1").Return(&crawl.Config{
		ID: "crawl-1", PagesIngested: 1, TotalPages: 5, Status: crawl.StatusCrawling,
	}, nil)

	consumer := worker.NewPageConsumer(crawls, stubRobots{allowed: true}, stubLimiter{allowed: true}, fetcher, pipeline, new(MockPublisher))
	err := consumer.HandleMessage(pageMessage(t, worker.CrawlPagePayload{
		CrawlID: "crawl-1", UserID: "u1", URL: "https://docs.example.com/empty",
	}))

	assert.NoError(t, err)
	crawls.AssertNotCalled(t, "IncrementFailed", mock.Anything, mock.Anything)
}
