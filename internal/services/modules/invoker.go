package modules

//go:generate mockgen -destination=mock_modules.go -package=modules vision-gateway-go/internal/services/modules Invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Invoker calls a named method on a collaborator module.
type Invoker interface {
	Invoke(ctx context.Context, moduleID, method string, request any) (*Response, error)
}

// Response is a module method result.
type Response struct {
	Status  int             `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the payload into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Payload) == 0 {
		return errors.New("empty response payload")
	}
	return json.Unmarshal(r.Payload, v)
}

// RemoteOperationError is a failed module call, either at transport level or with a non-2xx status.
type RemoteOperationError struct {
	Module string
	Method string
	Status int
	Err    error
}

func (e *RemoteOperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %v", e.Module, e.Method, e.Err)
	}
	return fmt.Sprintf("%s.%s: status %d", e.Module, e.Method, e.Status)
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}

// Call invokes method and converts transport errors and non-2xx statuses into *RemoteOperationError.
func Call(ctx context.Context, inv Invoker, moduleID, method string, request any) (*Response, error) {
	resp, err := inv.Invoke(ctx, moduleID, method, request)
	if err != nil {
		return nil, &RemoteOperationError{Module: moduleID, Method: method, Err: err}
	}
	if !resp.OK() {
		status := 0
		if resp != nil {
			status = resp.Status
		}
		return resp, &RemoteOperationError{Module: moduleID, Method: method, Status: status}
	}
	return resp, nil
}
