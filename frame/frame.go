package frame

import (
	"fmt"
)

// Bytes per pixel of the raw decoder output (BGR24).
const PixelSize = 3

// Frame is a raw BGR pixel buffer plus the simulated capture timestamp
// in milliseconds. Once handed downstream a Frame is never mutated, so it
// can be shared between the broadcaster readers without copying.
type Frame struct {
	Width     int
	Height    int
	Timestamp int64
	Data      []byte
}

// Pair carries the two views cropped out of one captured image.
// Both views always share the capture's timestamp.
type Pair struct {
	Primary *Frame
	Code    *Frame
}

// Size returns the expected byte length of a frame with the given dimensions.
func Size(width, height int) int {
	return width * height * PixelSize
}

// Blank returns a zero-filled (black) frame, used by the encoder warmup
// when no live frame has been published yet.
func Blank(width, height int, timestamp int64) *Frame {
	return &Frame{
		Width:     width,
		Height:    height,
		Timestamp: timestamp,
		Data:      make([]byte, Size(width, height)),
	}
}

// Geometry describes how a captured image is split into the primary view
// (top-left, output-sized) and the code view (bottom-right square of the
// original capture). The two regions must not overlap.
type Geometry struct {
	CaptureWidth  int
	CaptureHeight int
	OutputWidth   int
	OutputHeight  int
	CodeSize      int
}

// Validate checks that both crop regions fit inside the capture and do not
// overlap each other.
func (g Geometry) Validate() error {
	if g.CaptureWidth <= 0 || g.CaptureHeight <= 0 {
		return fmt.Errorf("frame: invalid capture size %dx%d", g.CaptureWidth, g.CaptureHeight)
	}
	if g.OutputWidth <= 0 || g.OutputWidth > g.CaptureWidth ||
		g.OutputHeight <= 0 || g.OutputHeight > g.CaptureHeight {
		return fmt.Errorf("frame: output %dx%d does not fit capture %dx%d",
			g.OutputWidth, g.OutputHeight, g.CaptureWidth, g.CaptureHeight)
	}
	if g.CodeSize <= 0 || g.CodeSize > g.CaptureWidth || g.CodeSize > g.CaptureHeight {
		return fmt.Errorf("frame: code region %d does not fit capture %dx%d",
			g.CodeSize, g.CaptureWidth, g.CaptureHeight)
	}
	// The primary view occupies the top-left corner, the code view the
	// bottom-right one. They overlap only if the primary reaches past the
	// code view's top-left corner in both axes.
	if g.OutputWidth > g.CaptureWidth-g.CodeSize && g.OutputHeight > g.CaptureHeight-g.CodeSize {
		return fmt.Errorf("frame: primary %dx%d overlaps %dpx code region in %dx%d capture",
			g.OutputWidth, g.OutputHeight, g.CodeSize, g.CaptureWidth, g.CaptureHeight)
	}
	return nil
}

// Split crops the captured image into the primary and code views.
// The capture buffer is not retained: both views get their own copies.
func (g Geometry) Split(capture *Frame) (Pair, error) {
	if capture.Width != g.CaptureWidth || capture.Height != g.CaptureHeight {
		return Pair{}, fmt.Errorf("frame: capture is %dx%d, geometry expects %dx%d",
			capture.Width, capture.Height, g.CaptureWidth, g.CaptureHeight)
	}
	if len(capture.Data) != Size(capture.Width, capture.Height) {
		return Pair{}, fmt.Errorf("frame: capture buffer is %d bytes, want %d",
			len(capture.Data), Size(capture.Width, capture.Height))
	}
	primary := crop(capture, 0, 0, g.OutputWidth, g.OutputHeight)
	code := crop(capture,
		g.CaptureWidth-g.CodeSize, g.CaptureHeight-g.CodeSize,
		g.CodeSize, g.CodeSize)
	return Pair{Primary: primary, Code: code}, nil
}

func crop(src *Frame, x, y, width, height int) *Frame {
	dst := &Frame{
		Width:     width,
		Height:    height,
		Timestamp: src.Timestamp,
		Data:      make([]byte, Size(width, height)),
	}
	srcStride := src.Width * PixelSize
	dstStride := width * PixelSize
	for row := 0; row < height; row++ {
		srcOff := (y+row)*srcStride + x*PixelSize
		copy(dst.Data[row*dstStride:(row+1)*dstStride], src.Data[srcOff:srcOff+dstStride])
	}
	return dst
}
