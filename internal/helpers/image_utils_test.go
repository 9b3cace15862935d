package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"already fits", 320, 240, 320, 240},
		{"wide", 1920, 1080, 640, 360},
		{"tall", 1080, 1920, 203, 360},
		{"invalid", 0, 100, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := fitWithin(tt.w, tt.h, 640, 360)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestResizeJPEGRejectsOtherFormats(t *testing.T) {
	_, err := ResizeJPEG([]byte{0x89, 'P', 'N', 'G'}, 640, 360, 75)
	assert.Error(t, err)
}

func TestJPEGDataURI(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,/9j/", JPEGDataURI([]byte{0xff, 0xd8, 0xff}))
}
