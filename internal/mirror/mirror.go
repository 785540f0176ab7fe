// Package mirror republishes outbound events on NATS so external viewers can follow a
// bridge without sharing its stdout.
//
// Each event goes to <prefix>.<username>.<event>, for example
// craftbridge.McFunBot.dig_area_done, with the same JSON body written to stdout.
package mirror

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/events"
	"github.com/msageha/craftbridge/internal/model"
)

// Publisher is the part of *nats.Conn the mirror uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Mirror struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
	user   string
	logger *zap.Logger
}

// Connect dials url. The client keeps retrying in the background, so a broker that is
// down at start does not hold the bridge up.
func Connect(url, prefix, username string, logger *zap.Logger) (*Mirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("craftbridge-"+username),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("mirror disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("mirror reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect mirror %s: %w", url, err)
	}
	m := New(nc, prefix, username, logger)
	m.conn = nc
	return m, nil
}

func New(pub Publisher, prefix, username string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{pub: pub, prefix: prefix, user: username, logger: logger}
}

// Attach mirrors every event published on bus until the returned function is called.
func (m *Mirror) Attach(bus *events.Bus) func() {
	return bus.Subscribe(events.AllEvents, m.Publish)
}

// Publish sends one event. Failures are logged and otherwise ignored.
func (m *Mirror) Publish(ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		m.logger.Warn("mirror encode", zap.String("event", ev.Name), zap.Error(err))
		return
	}
	subject := Subject(m.prefix, m.user, ev.Name)
	if err := m.pub.Publish(subject, data); err != nil {
		m.logger.Warn("mirror publish", zap.String("subject", subject), zap.Error(err))
	}
}

// Close flushes pending publishes and closes the connection it opened.
func (m *Mirror) Close() {
	if m.conn == nil {
		return
	}
	if err := m.conn.FlushTimeout(time.Second); err != nil {
		m.logger.Debug("mirror flush", zap.Error(err))
	}
	m.conn.Close()
}

// Subject builds the subject for one event. Characters NATS treats as separators or
// wildcards are replaced in each token.
func Subject(prefix, username, event string) string {
	parts := []string{token(username), token(event)}
	if prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, ".")
}

func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
