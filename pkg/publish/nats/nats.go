// Package nats publishes lifecycle events of the client to a NATS server.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/lifecycle"
)

type (
	// Conn is the part of *nats.Conn used by the publisher.
	Conn interface {
		Publish(subj string, data []byte) error
		Flush() error
	}

	Publisher struct {
		conn    Conn
		subject string
		address string
		frames  bool
		l       *log.Logger
	}
	Option func(*Publisher)
)

const DefaultSubject = "racegarage"

func WithSubject(s string) Option {
	return func(p *Publisher) {
		if s != "" {
			p.subject = strings.TrimSuffix(s, ".")
		}
	}
}

// WithAddress sets the wallet address used as last subject token.
func WithAddress(addr string) Option {
	return func(p *Publisher) {
		p.address = addr
	}
}

// WithFrames enables publishing of simulation frames.
func WithFrames(enable bool) Option {
	return func(p *Publisher) {
		p.frames = enable
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		p.l = l
	}
}

func NewPublisher(conn Conn, opts ...Option) *Publisher {
	ret := &Publisher{
		conn:    conn,
		subject: DefaultSubject,
		l:       log.Default().Named("nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Connect opens a connection to url suitable for NewPublisher.
func Connect(url string, timeout time.Duration) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("rgc"),
		nats.Timeout(timeout),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return conn, nil
}

// Subject returns the subject an event of kind is published on.
func (p *Publisher) Subject(kind lifecycle.EventKind) string {
	addr := p.address
	if addr == "" {
		addr = "anonymous"
	}
	return fmt.Sprintf("%s.%s.%s", p.subject, kind, addr)
}

// Publish sends a single event. Frames are skipped unless enabled.
func (p *Publisher) Publish(ev lifecycle.Event) error {
	if ev.Kind == lifecycle.EventFrame && !p.frames {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	return p.conn.Publish(p.Subject(ev.Kind), data)
}

// Run publishes events until the channel is closed or ctx is done.
// Publish failures are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, events <-chan lifecycle.Event) {
	defer func() {
		if err := p.conn.Flush(); err != nil {
			p.l.Warn("could not flush nats connection", log.ErrorField(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ev); err != nil {
				p.l.Warn("could not publish event",
					log.String("kind", string(ev.Kind)),
					log.ErrorField(err))
			}
		}
	}
}
