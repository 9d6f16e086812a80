package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/af-corp/consilium/internal/config"
	"github.com/af-corp/consilium/internal/types"
)

// Queue carries run requests and run results over NATS JetStream. Workers
// consume run requests with explicit acks so a crashed worker's run is
// redelivered.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cfg    config.QueueConfig
	logger *slog.Logger
}

// ConnectQueue connects to NATS and ensures the stream exists.
func ConnectQueue(ctx context.Context, cfg config.QueueConfig, logger *slog.Logger) (*Queue, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{"pipeline.runs.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	logger.Info("nats connected", "url", cfg.URL, "stream", cfg.Stream)
	return &Queue{nc: nc, js: js, cfg: cfg, logger: logger}, nil
}

// EnqueueRun publishes a run request for a worker to pick up.
func (q *Queue) EnqueueRun(ctx context.Context, req *types.RunRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}
	if _, err := q.js.Publish(ctx, q.cfg.RunSubject, data); err != nil {
		return fmt.Errorf("enqueue run %s: %w", req.TraceID, err)
	}
	return nil
}

// PublishResult announces a finished run on the completed or failed subject.
func (q *Queue) PublishResult(ctx context.Context, record *types.PipelineRecord) error {
	subject := q.cfg.ResultSubject
	if record.Status == types.StatusFailed {
		subject = q.cfg.FailureSubject
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish result %s: %w", record.TraceID, err)
	}
	return nil
}

// ConsumeRuns delivers queued run requests to handler. A handler error naks
// the message for redelivery; malformed payloads are acked and dropped.
func (q *Queue) ConsumeRuns(ctx context.Context, handler func(context.Context, *types.RunRequest) error) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       "pipeline-workers",
		FilterSubject: q.cfg.RunSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		var req types.RunRequest
		if err := json.Unmarshal(msg.Data(), &req); err != nil {
			q.logger.Error("dropping malformed run request", "error", err)
			if ackErr := msg.Ack(); ackErr != nil {
				q.logger.Error("nats ack failed", "error", ackErr)
			}
			return
		}

		if err := handler(ctx, &req); err != nil {
			q.logger.Error("run handler failed", "trace_id", req.TraceID, "error", err)
			if nakErr := msg.Nak(); nakErr != nil {
				q.logger.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			q.logger.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}
	return cons.Stop, nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() {
	q.nc.Close()
}
