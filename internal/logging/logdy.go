package logging

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/logdyhq/logdy-core/logdy"

	"vision-gateway-go/internal/config"
)

// logdySink forwards every zerolog line to the embedded Logdy UI.
type logdySink struct {
	ld logdy.Logdy
}

func (w *logdySink) Write(p []byte) (int, error) {
	w.ld.LogString(string(p))
	return len(p), nil
}

// StartLogdy starts the embedded Logdy UI on cfg.LogdyHost:cfg.LogdyPort and returns a
// sink to tee the gateway's logs into, plus the UI address.
func StartLogdy(cfg *config.Config) (io.Writer, string, error) {
	if cfg.LogdyPort <= 0 || cfg.LogdyPort > 65535 {
		return nil, "", fmt.Errorf("logdy port %d out of range", cfg.LogdyPort)
	}
	port := strconv.Itoa(cfg.LogdyPort)
	ld := logdy.InitializeLogdy(logdy.Config{
		ServerIp:   cfg.LogdyHost,
		ServerPort: port,
	}, nil)
	return &logdySink{ld: ld}, "http://" + net.JoinHostPort(cfg.LogdyHost, port), nil
}
