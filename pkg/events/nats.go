package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "tribunal.court"

// Publisher is the part of a NATS connection the event publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes events as JSON on <prefix>.<kind>.
type NATS struct {
	conn   Publisher
	prefix string
}

func NewNATS(conn Publisher, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{conn: conn, prefix: prefix}
}

// ConnectNATS dials url and returns a publisher together with the connection,
// which the caller must close.
func ConnectNATS(url, prefix string) (*NATS, *nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("tribunal"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return NewNATS(conn, prefix), conn, nil
}

func (n *NATS) Subject(kind Kind) string {
	return fmt.Sprintf("%s.%s", n.prefix, kind)
}

func (n *NATS) Publish(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Kind, err)
	}
	if err := n.conn.Publish(n.Subject(e.Kind), payload); err != nil {
		return fmt.Errorf("publish event %s: %w", e.Kind, err)
	}
	return nil
}
