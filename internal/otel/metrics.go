package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all talbot metrics instruments.
type Metrics struct {
	MessagesStored    metric.Int64Counter
	MessagesPurged    metric.Int64Counter
	SummarizeDuration metric.Float64Histogram
	SummarizeRetries  metric.Int64Counter
	DigestDeliveries  metric.Int64Counter
	DigestFailures    metric.Int64Counter
	CommandDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.MessagesStored, err = meter.Int64Counter("talbot.messages.stored",
		metric.WithDescription("Messages appended to the retention store"),
	)
	if err != nil {
		return nil, err
	}

	m.MessagesPurged, err = meter.Int64Counter("talbot.messages.purged",
		metric.WithDescription("Messages removed by the retention sweeper"),
	)
	if err != nil {
		return nil, err
	}

	m.SummarizeDuration, err = meter.Float64Histogram("talbot.summarize.duration",
		metric.WithDescription("LLM summarization call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.SummarizeRetries, err = meter.Int64Counter("talbot.summarize.retries",
		metric.WithDescription("Summarization attempts retried after rate limiting"),
	)
	if err != nil {
		return nil, err
	}

	m.DigestDeliveries, err = meter.Int64Counter("talbot.digest.deliveries",
		metric.WithDescription("Digest messages delivered to destinations"),
	)
	if err != nil {
		return nil, err
	}

	m.DigestFailures, err = meter.Int64Counter("talbot.digest.failures",
		metric.WithDescription("Digest deliveries that failed"),
	)
	if err != nil {
		return nil, err
	}

	m.CommandDuration, err = meter.Float64Histogram("talbot.command.duration",
		metric.WithDescription("Chat command handling duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
