package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"vision-gateway-go/internal/config"
)

// ConnectionListener is notified when the shared NATS connection drops, recovers or errors.
type ConnectionListener struct {
	OnDisconnect func(err error)
	OnReconnect  func()
	OnError      func(err error)
}

type Service struct {
	conn *nats.Conn
	js   jetstream.JetStream
	cfg  *config.Config

	mu        sync.RWMutex
	listeners map[int]ConnectionListener
	nextID    int
}

func NewService(cfg *config.Config) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		listeners: make(map[int]ConnectionListener),
	}

	opts := []nats.Option{
		nats.Name(cfg.ModuleID + "-" + cfg.GatewayID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
			s.notify(func(l ConnectionListener) {
				if l.OnDisconnect != nil {
					l.OnDisconnect(err)
				}
			})
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			s.notify(func(l ConnectionListener) {
				if l.OnReconnect != nil {
					l.OnReconnect()
				}
			})
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS async error")
			s.notify(func(l ConnectionListener) {
				if l.OnError != nil {
					l.OnError(err)
				}
			})
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NatsURL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	log.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	s.conn = conn
	s.js = js
	return s, nil
}

// AddListener registers l and returns a function that removes it.
func (s *Service) AddListener(l ConnectionListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify(fn func(ConnectionListener)) {
	s.mu.RLock()
	ls := make([]ConnectionListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.RUnlock()

	for _, l := range ls {
		fn(l)
	}
}

func (s *Service) JetStream() jetstream.JetStream {
	return s.js
}

func (s *Service) Conn() *nats.Conn {
	return s.conn
}

func (s *Service) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.conn.Publish(subject, payload)
}

// Request sends data as JSON and waits for a single reply until ctx is done.
func (s *Service) Request(ctx context.Context, subject string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	msg, err := s.conn.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}

func (s *Service) Subscribe(subject string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	return s.conn.Subscribe(subject, handler)
}

func (s *Service) QueueSubscribe(subject, queue string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	return s.conn.QueueSubscribe(subject, queue, handler)
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}

	done := make(chan struct{})
	s.conn.SetClosedHandler(func(*nats.Conn) { close(done) })

	// Try graceful drain with timeout, fallback to immediate close
	if err := s.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
		return nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("NATS drain timed out, closing")
		s.conn.Close()
	}
	return nil
}
