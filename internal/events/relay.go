package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject events are relayed on.
const DefaultSubject = "photowall.events"

// Relay carries local events to other instances.
type Relay interface {
	Forward(ev Event) error
	Close() error
}

// Receiver accepts events arriving from other instances.
type Receiver interface {
	Receive(ev Event)
}

// NATSRelay relays events over a NATS subject.
type NATSRelay struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	logger  *slog.Logger
}

var _ Relay = (*NATSRelay)(nil)

// ConnectNATS dials url and subscribes recv to subject.
func ConnectNATS(url, subject string, recv Receiver, logger *slog.Logger) (*NATSRelay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("photowall"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATSRelay(conn, subject, recv, logger)
}

func newNATSRelay(conn *nats.Conn, subject string, recv Receiver, logger *slog.Logger) (*NATSRelay, error) {
	r := &NATSRelay{conn: conn, subject: subject, logger: logger}
	sub, err := conn.Subscribe(subject, func(m *nats.Msg) {
		ev, err := DecodeEvent(m.Data)
		if err != nil {
			logger.Warn("drop malformed relay event", "error", err)
			return
		}
		recv.Receive(ev)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	r.sub = sub
	return r, nil
}

// Forward publishes ev on the relay subject.
func (r *NATSRelay) Forward(ev Event) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return r.conn.Publish(r.subject, data)
}

// Close drains the subscription and closes the connection.
func (r *NATSRelay) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
		return err
	}
	return nil
}

// EncodeEvent returns the wire form of ev.
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent parses a relayed event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	switch ev.Kind {
	case KindPhotoUploaded:
		if ev.Photo == nil {
			return Event{}, fmt.Errorf("photo_uploaded without photo")
		}
	case KindPhotoDeleted:
		if ev.ID == "" {
			return Event{}, fmt.Errorf("photo_deleted without id")
		}
	default:
		return Event{}, fmt.Errorf("unexpected event kind %q", ev.Kind)
	}
	return ev, nil
}
