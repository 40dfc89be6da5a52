package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"go.povoice.tech/internal/common/metrics"
)

// subscriberBuffer bounds each subscriber channel; slow SSE clients
// drop events rather than stall the publisher.
const subscriberBuffer = 64

// NATSBus implements Bus over NATS core pub/sub. When embedded is set
// the bus owns an in-process server and shuts it down on Close.
type NATSBus struct {
	conn     *nats.Conn
	embedded *server.Server
}

// Connect creates a bus against an external NATS server
func Connect(url string) (*NATSBus, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &NATSBus{conn: conn}, nil
}

// StartEmbedded runs an in-process NATS server and connects to it.
// Used for single-binary deployments with no external broker.
func StartEmbedded() (*NATSBus, error) {
	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server failed to start within timeout")
	}

	slog.Info("Embedded NATS server started", "url", ns.ClientURL())

	conn, err := connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, err
	}

	return &NATSBus{conn: conn, embedded: ns}, nil
}

func connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// PublishPipeline emits a batch lifecycle event to the global stream
func (b *NATSBus) PublishPipeline(ctx context.Context, ev PipelineEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return b.publish(subjectPipeline, "pipeline", ev)
}

// PublishBatch emits an event on a single batch's stream
func (b *NATSBus) PublishBatch(ctx context.Context, ev BatchEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return b.publish(batchSubject(ev.BatchID), "batch", ev)
}

// PublishUpload emits a progress event for an upload job
func (b *NATSBus) PublishUpload(ctx context.Context, ev UploadEvent) error {
	return b.publish(uploadSubject(ev.JobID), "upload", ev)
}

func (b *NATSBus) publish(subject, channel string, ev any) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := b.conn.Publish(subject, data); err != nil {
		metrics.BusPublishErrors.WithLabelValues(channel).Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.BusEventsPublished.WithLabelValues(channel).Inc()
	return nil
}

// SubscribePipeline streams global batch lifecycle events
func (b *NATSBus) SubscribePipeline(ctx context.Context) (<-chan PipelineEvent, func(), error) {
	return subscribe[PipelineEvent](b.conn, subjectPipeline)
}

// SubscribeBatch streams one batch's events
func (b *NATSBus) SubscribeBatch(ctx context.Context, batchID string) (<-chan BatchEvent, func(), error) {
	return subscribe[BatchEvent](b.conn, batchSubject(batchID))
}

// SubscribeUpload streams one upload job's progress events
func (b *NATSBus) SubscribeUpload(ctx context.Context, jobID string) (<-chan UploadEvent, func(), error) {
	return subscribe[UploadEvent](b.conn, uploadSubject(jobID))
}

func subscribe[T any](conn *nats.Conn, subject string) (<-chan T, func(), error) {
	ch := make(chan T, subscriberBuffer)

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev T
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("Dropping undecodable event", "subject", subject, "error", err)
			return
		}
		select {
		case ch <- ev:
		default:
			// Subscriber is not draining; drop rather than block
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	cancel := func() {
		sub.Unsubscribe()
		close(ch)
	}
	return ch, cancel, nil
}

// Connected reports whether the NATS connection is up
func (b *NATSBus) Connected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close releases the connection and the embedded server if owned
func (b *NATSBus) Close() error {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.embedded != nil {
		b.embedded.Shutdown()
		b.embedded.WaitForShutdown()
		slog.Info("Embedded NATS server shut down")
	}
	return nil
}
