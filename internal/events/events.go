// Package events publishes work order lifecycle events over MQTT.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Event types.
const (
	PermitSubmitted    = "permit_submitted"
	LotoUpdated        = "loto_updated"
	DowntimeResolved   = "downtime_resolved"
	WorkOrderStarted   = "work_order_started"
	WorkOrderCompleted = "work_order_completed"
)

// Event is one lifecycle notification.
type Event struct {
	Type        string      `json:"type"`
	WorkOrderID string      `json:"work_order_id"`
	ActorID     string      `json:"actor_id,omitempty"`
	At          time.Time   `json:"at"`
	Data        interface{} `json:"data,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Client is the part of mqtt.Client used for publishing.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

const qosAtLeastOnce = 1

// MQTTPublisher publishes events as JSON to <prefix>/work-orders/<id>/<type>.
type MQTTPublisher struct {
	client  Client
	prefix  string
	timeout time.Duration
	log     *log.Entry
}

// NewMQTTPublisher returns a publisher on an already connected client.
func NewMQTTPublisher(client Client, prefix string, timeout time.Duration, logger *log.Entry) *MQTTPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &MQTTPublisher{client: client, prefix: prefix, timeout: timeout, log: logger}
}

// Topic returns the topic an event is published on.
func (p *MQTTPublisher) Topic(ev Event) string {
	return fmt.Sprintf("%s/work-orders/%s/%s", p.prefix, ev.WorkOrderID, ev.Type)
}

// Publish sends ev with QoS 1 and waits for the acknowledgement.
func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	topic := p.Topic(ev)
	token := p.client.Publish(topic, qosAtLeastOnce, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.log.WithFields(log.Fields{"topic": topic, "bytes": len(payload)}).Debug("Event published")
	return nil
}

// Connect dials the broker and returns the connected client.
func Connect(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return client, nil
}

// Logged wraps a publisher so delivery errors are logged instead of
// returned. Lifecycle events are best effort.
func Logged(p Publisher, logger *log.Entry) Publisher {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return loggedPublisher{next: p, log: logger}
}

type loggedPublisher struct {
	next Publisher
	log  *log.Entry
}

func (l loggedPublisher) Publish(ctx context.Context, ev Event) error {
	if err := l.next.Publish(ctx, ev); err != nil {
		l.log.WithError(err).WithFields(log.Fields{
			"event":         ev.Type,
			"work_order_id": ev.WorkOrderID,
		}).Warn("Event not delivered")
	}
	return nil
}
