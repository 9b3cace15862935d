package helpers

import (
	"encoding/base64"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// isJPEGData checks if the byte slice contains JPEG data by checking magic bytes
func isJPEGData(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	// JPEG magic bytes: FF D8
	return data[0] == 0xFF && data[1] == 0xD8
}

// fitWithin scales width x height down to fit maxWidth x maxHeight, keeping the aspect ratio.
// Images already inside the box are returned unchanged.
func fitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 || maxWidth <= 0 || maxHeight <= 0 {
		return width, height
	}
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}

	scaleX := float64(maxWidth) / float64(width)
	scaleY := float64(maxHeight) / float64(height)
	scale := min(scaleX, scaleY)

	return max(1, int(math.Round(float64(width)*scale))), max(1, int(math.Round(float64(height)*scale)))
}

// ResizeJPEG decodes a camera snapshot, shrinks it to fit maxWidth x maxHeight and re-encodes it
// at quality. Non-JPEG input is rejected.
func ResizeJPEG(data []byte, maxWidth, maxHeight, quality int) ([]byte, error) {
	if !isJPEGData(data) {
		return nil, fmt.Errorf("snapshot is not JPEG data (%d bytes)", len(data))
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decoded snapshot is empty")
	}

	w, h := fitWithin(mat.Cols(), mat.Rows(), maxWidth, maxHeight)
	if w != mat.Cols() || h != mat.Rows() {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
		return encodeJPEG(resized, quality)
	}
	return encodeJPEG(mat, quality)
}

func encodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// JPEGDataURI renders JPEG bytes as a data URI for telemetry payloads.
func JPEGDataURI(data []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
}
