package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"vision-gateway-go/internal/models"
)

// Subscriber is the part of the messaging service the inbound listener needs.
type Subscriber interface {
	QueueSubscribe(subject, queue string, handler func(*nats.Msg)) (*nats.Subscription, error)
}

// InputSubject is the subject messages for a collaborator input arrive on.
func InputSubject(prefix, input string) string {
	return prefix + ".inputs." + input
}

// Listen subscribes the registry to every collaborator input. The returned func
// unsubscribes again.
func (r *Registry) Listen(sub Subscriber, prefix string, timeout time.Duration) (func(), error) {
	var subs []*nats.Subscription
	stop := func() {
		for _, s := range subs {
			if err := s.Unsubscribe(); err != nil {
				r.logger.Debug().Err(err).Str("subject", s.Subject).Msg("Unsubscribe failed")
			}
		}
	}

	for _, input := range Inputs {
		input := input
		subject := InputSubject(prefix, input)
		s, err := sub.QueueSubscribe(subject, "gateway", func(m *nats.Msg) {
			r.handleInbound(input, m, timeout)
		})
		if err != nil {
			stop()
			return nil, err
		}
		subs = append(subs, s)
		r.logger.Info().Str("subject", subject).Msg("Listening for inbound messages")
	}
	return stop, nil
}

func (r *Registry) handleInbound(input string, m *nats.Msg, timeout time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("input", input).Msg("Recovered from panic in inbound handler")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := r.RouteInbound(ctx, input, messageFromNats(m))
	if err != nil {
		r.logger.Warn().Err(err).Str("input", input).Msg("Inbound message not routed")
	}
	if m.Reply == "" || input != InputCommand {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to encode gateway command response")
		return
	}
	if err := m.Respond(data); err != nil {
		r.logger.Error().Err(err).Msg("Failed to reply to gateway command")
	}
}

func messageFromNats(m *nats.Msg) models.Message {
	msg := models.Message{Data: m.Data, Properties: make(map[string]string, len(m.Header))}
	for key, values := range m.Header {
		if len(values) > 0 {
			msg.Properties[key] = values[0]
		}
	}
	return msg
}
