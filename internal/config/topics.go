package config

const (
	// TopicIngestTask carries file and provider ingestion tasks.
	TopicIngestTask = "ingest.task"

	// TopicCrawlDiscover carries one discovery task per crawl submission.
	TopicCrawlDiscover = "crawl.discover"

	// TopicCrawlPage carries one worker task per discovered URL.
	TopicCrawlPage = "crawl.page"

	// TopicIngestOutcome carries terminal pipeline outcomes for the
	// notification consumer.
	TopicIngestOutcome = "ingest.outcome"
)
