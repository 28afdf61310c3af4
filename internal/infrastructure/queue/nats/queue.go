package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/collision-estimator/internal/infrastructure/resilience"
)

const publishOperation = "nats.publish_reindex"

// ReindexBus broadcasts re-index requests. Every subscriber rebuilds its own
// in-memory index, so subscriptions are plain fan-out rather than a queue
// group.
type ReindexBus struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ClientName           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

type reindexMessage struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

func New(url, subject string, options Options) (*ReindexBus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.ClientName
	if name == "" {
		name = "collision-estimator"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &ReindexBus{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (b *ReindexBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *ReindexBus) PublishReindexRequested(ctx context.Context, reason string) error {
	payload, err := encodeReindex(reason, time.Now().UTC())
	if err != nil {
		return err
	}

	publish := func(_ context.Context) error {
		if err := b.conn.Publish(b.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		if err := b.conn.FlushTimeout(2 * time.Second); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, publishOperation, publish, classifyNATSError)
	} else {
		err = publish(ctx)
	}
	return resilience.MarkTemporary(publishOperation, err, classifyNATSError)
}

// classifyNATSError retries connection-level failures; anything else, such
// as an invalid subject, is final.
func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrReconnectBufExceeded):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// SubscribeReindexRequested blocks until ctx is canceled, invoking handler for
// each request. Handler errors are logged; the subscription stays alive.
func (b *ReindexBus) SubscribeReindexRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		reason := decodeReindex(msg.Data)

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, reason); err != nil {
			b.logger.Error("reindex handler failed", "reason", reason, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}

func encodeReindex(reason string, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(reindexMessage{Reason: strings.TrimSpace(reason), RequestedAt: at})
	if err != nil {
		return nil, fmt.Errorf("encode reindex request: %w", err)
	}
	return payload, nil
}

// decodeReindex accepts the JSON envelope or a bare reason string, so a
// manual `nats pub corpus.reindex "manual"` works too.
func decodeReindex(data []byte) string {
	var msg reindexMessage
	if err := json.Unmarshal(data, &msg); err == nil && msg.Reason != "" {
		return msg.Reason
	}
	if reason := strings.TrimSpace(string(data)); reason != "" && !strings.HasPrefix(reason, "{") {
		return reason
	}
	return "unspecified"
}
