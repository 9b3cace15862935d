package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vision-gateway-go/internal/config"
)

func TestStartLogdyRejectsBadPort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		w, url, err := StartLogdy(&config.Config{LogdyHost: "127.0.0.1", LogdyPort: port})
		assert.Error(t, err, "port %d", port)
		assert.Nil(t, w)
		assert.Empty(t, url)
	}
}
