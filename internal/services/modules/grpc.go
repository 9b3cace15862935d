package modules

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// invokeMethod is the generic module dispatch RPC. Request and reply are google.protobuf.Struct:
// request {moduleId, methodName, payload}, reply {status, payload}.
const invokeMethod = "/gateway.modules.v1.ModuleService/Invoke"

// GRPCInvoker calls module methods through a gRPC module host.
type GRPCInvoker struct {
	mu       sync.RWMutex
	conn     *grpc.ClientConn
	endpoint string
}

// NewGRPCInvoker creates a lazily connecting client for endpoint.
func NewGRPCInvoker(endpoint string) (*GRPCInvoker, error) {
	target, creds, err := parseGRPCEndpoint(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse module endpoint %s: %w", endpoint, err)
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to module host at %s: %w", target, err)
	}

	log.Info().
		Str("original_endpoint", endpoint).
		Str("normalized_endpoint", target).
		Bool("use_tls", creds.Info().SecurityProtocol == "tls").
		Msg("Module gRPC connection initialized")

	return &GRPCInvoker{conn: conn, endpoint: target}, nil
}

func (g *GRPCInvoker) Invoke(ctx context.Context, moduleID, method string, request any) (*Response, error) {
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("module client closed")
	}

	payload, err := toStructValue(request)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s request: %w", moduleID, method, err)
	}

	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"moduleId":   structpb.NewStringValue(moduleID),
		"methodName": structpb.NewStringValue(method),
		"payload":    payload,
	}}
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, invokeMethod, in, out); err != nil {
		return nil, fmt.Errorf("invoke %s.%s: %w", moduleID, method, err)
	}

	resp := &Response{Status: int(out.GetFields()["status"].GetNumberValue())}
	if p, ok := out.GetFields()["payload"]; ok {
		raw, err := p.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s reply: %w", moduleID, method, err)
		}
		resp.Payload = raw
	}
	return resp, nil
}

// Healthy runs the standard gRPC health check against the module host.
func (g *GRPCInvoker) Healthy(ctx context.Context) bool {
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()
	if conn == nil {
		return false
	}
	if s := conn.GetState(); s == connectivity.Shutdown || s == connectivity.TransientFailure {
		return false
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		log.Warn().Err(err).Str("endpoint", g.endpoint).Msg("Module host health check failed")
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

func (g *GRPCInvoker) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	return err
}

// toStructValue converts any JSON-serializable value to a protobuf Value.
func toStructValue(v any) (*structpb.Value, error) {
	if v == nil {
		return structpb.NewNullValue(), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}

// parseGRPCEndpoint normalizes host[:port] or URL endpoints and picks transport credentials.
func parseGRPCEndpoint(endpoint string) (string, credentials.TransportCredentials, error) {
	if !strings.Contains(endpoint, "://") {
		host, portStr, found := strings.Cut(endpoint, ":")
		switch {
		case !found:
			endpoint = "https://" + host + ":443"
		default:
			port, err := strconv.Atoi(portStr)
			if err == nil && (port == 443 || port == 8443 || port == 9443) {
				endpoint = "https://" + endpoint
			} else {
				endpoint = "http://" + endpoint
			}
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}

	host := u.Host
	var creds credentials.TransportCredentials
	switch u.Scheme {
	case "https":
		if u.Port() == "" {
			host = u.Hostname() + ":443"
		}
		creds = credentials.NewTLS(&tls.Config{ServerName: u.Hostname()})
	case "http":
		if u.Port() == "" {
			host = u.Hostname() + ":80"
		}
		creds = insecure.NewCredentials()
	default:
		return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	return host, creds, nil
}
