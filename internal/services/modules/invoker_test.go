package modules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeRequester struct {
	subject string
	request interface{}
	reply   []byte
	err     error
}

func (f *fakeRequester) Request(_ context.Context, subject string, data interface{}) ([]byte, error) {
	f.subject = subject
	f.request = data
	return f.reply, f.err
}

func TestNatsInvokerDecodesReply(t *testing.T) {
	req := &fakeRequester{reply: []byte(`{"status":201,"payload":{"name":"topo"}}`)}
	inv := NewNatsInvoker(req, "gateway")

	resp, err := inv.Invoke(context.Background(), "avaEdge", "pipelineTopologySet", map[string]any{"name": "topo"})
	require.NoError(t, err)

	assert.Equal(t, "gateway.modules.avaEdge.methods.pipelineTopologySet", req.subject)
	assert.True(t, resp.OK())

	var body struct{ Name string }
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "topo", body.Name)
}

func TestNatsInvokerTransportError(t *testing.T) {
	inv := NewNatsInvoker(&fakeRequester{err: errors.New("no responders")}, "gateway")
	_, err := inv.Invoke(context.Background(), "avaEdge", "livePipelineActivate", nil)
	assert.ErrorContains(t, err, "no responders")
}

func TestCallWrapsFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := NewMockInvoker(ctrl)
	ctx := context.Background()

	inv.EXPECT().Invoke(ctx, "avaEdge", "livePipelineSet", gomock.Any()).Return(&Response{Status: 400}, nil)
	inv.EXPECT().Invoke(ctx, "avaEdge", "livePipelineActivate", gomock.Any()).Return(nil, errors.New("timeout"))
	inv.EXPECT().Invoke(ctx, "avaEdge", "livePipelineDeactivate", gomock.Any()).Return(&Response{Status: 204}, nil)

	_, err := Call(ctx, inv, "avaEdge", "livePipelineSet", nil)
	var opErr *RemoteOperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 400, opErr.Status)
	assert.Equal(t, "avaEdge.livePipelineSet: status 400", err.Error())

	_, err = Call(ctx, inv, "avaEdge", "livePipelineActivate", nil)
	require.ErrorAs(t, err, &opErr)
	assert.EqualError(t, errors.Unwrap(err), "timeout")

	resp, err := Call(ctx, inv, "avaEdge", "livePipelineDeactivate", nil)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.Status)
}

func TestResponseOK(t *testing.T) {
	var nilResp *Response
	assert.False(t, nilResp.OK())
	assert.True(t, (&Response{Status: 200}).OK())
	assert.True(t, (&Response{Status: 299}).OK())
	assert.False(t, (&Response{Status: 300}).OK())
	assert.False(t, (&Response{Status: 500}).OK())
}

func TestParseGRPCEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		wantHost string
		wantTLS  bool
	}{
		{"localhost:50051", "localhost:50051", false},
		{"modules.local:443", "modules.local:443", true},
		{"modules.local", "modules.local:443", true},
		{"http://10.0.0.2", "10.0.0.2:80", false},
		{"https://modules.example.com:9000", "modules.example.com:9000", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, creds, err := parseGRPCEndpoint(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantTLS, creds.Info().SecurityProtocol == "tls")
		})
	}

	_, _, err := parseGRPCEndpoint("ftp://host:21")
	assert.Error(t, err)
}

func TestToStructValue(t *testing.T) {
	v, err := toStructValue(map[string]any{"token": "profile_1", "n": 3})
	require.NoError(t, err)
	fields := v.GetStructValue().GetFields()
	assert.Equal(t, "profile_1", fields["token"].GetStringValue())
	assert.Equal(t, float64(3), fields["n"].GetNumberValue())

	v, err = toStructValue(nil)
	require.NoError(t, err)
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
}
