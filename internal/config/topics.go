package config

const (
	// TopicReindex carries reindex triggers from schedulers and the async admin endpoint.
	TopicReindex = "catalog.reindex"

	// TopicReindexReport receives the report of every finished reindex run.
	TopicReindexReport = "catalog.reindex.report"

	// ChannelReindexWorker is the consumer channel the backend uses on TopicReindex.
	ChannelReindexWorker = "backend"
)
