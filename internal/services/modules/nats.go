package modules

import (
	"context"
	"encoding/json"
	"fmt"
)

// Requester performs a request-reply round trip; messaging.Service satisfies it.
type Requester interface {
	Request(ctx context.Context, subject string, data interface{}) ([]byte, error)
}

// NatsInvoker calls module methods over NATS request-reply.
// Requests go to <prefix>.modules.<moduleID>.methods.<method>; the reply body is a Response.
type NatsInvoker struct {
	req    Requester
	prefix string
}

func NewNatsInvoker(req Requester, subjectPrefix string) *NatsInvoker {
	return &NatsInvoker{req: req, prefix: subjectPrefix}
}

// MethodSubject returns the subject a module method listens on.
func MethodSubject(prefix, moduleID, method string) string {
	return fmt.Sprintf("%s.modules.%s.methods.%s", prefix, moduleID, method)
}

func (n *NatsInvoker) Invoke(ctx context.Context, moduleID, method string, request any) (*Response, error) {
	data, err := n.req.Request(ctx, MethodSubject(n.prefix, moduleID, method), request)
	if err != nil {
		return nil, fmt.Errorf("request %s.%s: %w", moduleID, method, err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode %s.%s reply: %w", moduleID, method, err)
	}
	return &resp, nil
}
