// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/authwatch/internal/config"
	"github.com/tomtom215/authwatch/internal/detection"
	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/metrics"
)

// Backend names.
const (
	BackendChannel = "channel"
	BackendNATS    = "nats"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("alert publisher is closed")

// ErrNoSubscriber is returned by Listen on backends that cannot be consumed in-process.
var ErrNoSubscriber = errors.New("backend has no in-process subscriber")

// Alert is the payload of one anomaly message.
type Alert struct {
	RunID             string             `json:"run_id"`
	UserID            string             `json:"user_id"`
	Username          string             `json:"username"`
	EventType         string             `json:"event_type"`
	EventTime         *time.Time         `json:"event_time,omitempty"`
	IPAddress         string             `json:"ip_address,omitempty"`
	SessionID         string             `json:"session_id,omitempty"`
	Hits              detection.RuleHits `json:"hits"`
	RuleViolation     bool               `json:"rule_violation"`
	ClusteringOutlier bool               `json:"clustering_outlier"`
	IsolationOutlier  bool               `json:"isolation_outlier"`
	AccountChange     bool               `json:"account_change"`
}

// FromResult builds the alert for an anomalous result.
func FromResult(runID string, r *detection.Result) Alert {
	a := Alert{
		RunID:             runID,
		UserID:            r.Event.UserID,
		Username:          r.Event.Username,
		EventType:         r.Event.EventType,
		IPAddress:         r.Event.IPAddress,
		SessionID:         r.Event.SessionID,
		Hits:              r.Hits,
		RuleViolation:     r.RuleViolation,
		ClusteringOutlier: r.ClusteringOutlier,
		IsolationOutlier:  r.IsolationOutlier,
		AccountChange:     r.AccountChange,
	}
	if r.Event.TimeValid {
		t := r.Event.Time
		a.EventTime = &t
	}
	return a
}

// Publisher sends anomaly alerts through Watermill.
type Publisher struct {
	backend    string
	topic      string
	publisher  message.Publisher
	subscriber message.Subscriber

	mu     sync.RWMutex
	closed bool
}

// New creates a publisher for cfg.Backend.
func New(cfg config.AlertsConfig) (*Publisher, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger().With("component", "alerts"))

	p := &Publisher{backend: cfg.Backend, topic: cfg.Topic}
	switch cfg.Backend {
	case BackendChannel, "":
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		p.backend = BackendChannel
		p.publisher = ch
		p.subscriber = ch
	case BackendNATS:
		pub, err := newNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		p.publisher = pub
	default:
		return nil, fmt.Errorf("unknown alerts backend %q", cfg.Backend)
	}
	return p, nil
}

func newNATSPublisher(url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.Name("authwatch-alerts"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	// Core NATS: alerts are fire-and-forget notifications, no stream required.
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS alert publisher: %w", err)
	}
	return pub, nil
}

// Backend returns the configured backend name.
func (p *Publisher) Backend() string {
	return p.backend
}

// PublishAnomalies publishes one message per anomalous result and returns
// the number published. Failures are logged and counted, never returned.
func (p *Publisher) PublishAnomalies(ctx context.Context, runID string, results []detection.Result) int {
	published := 0
	for i := range results {
		if !results[i].Anomaly {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		err := p.Publish(ctx, FromResult(runID, &results[i]))
		metrics.RecordAlertPublish(p.backend, err)
		if err != nil {
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("user_id", results[i].Event.UserID).
				Str("backend", p.backend).
				Msg("Failed to publish anomaly alert")
			continue
		}
		published++
	}
	return published
}

// Publish sends a single alert.
func (p *Publisher) Publish(ctx context.Context, a Alert) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set("run_id", a.RunID)
	msg.Metadata.Set("user_id", a.UserID)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Listen consumes alerts from the in-process backend until ctx is done,
// calling handle for each. It returns ErrNoSubscriber for remote backends.
func (p *Publisher) Listen(ctx context.Context, handle func(Alert)) error {
	if p.subscriber == nil {
		return ErrNoSubscriber
	}
	messages, err := p.subscriber.Subscribe(ctx, p.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", p.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var a Alert
			if err := json.Unmarshal(msg.Payload, &a); err != nil {
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed alert")
			} else {
				handle(a)
			}
			msg.Ack()
		}
	}
}

// Close shuts down the publisher. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
