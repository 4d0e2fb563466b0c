package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeometry() Geometry {
	return Geometry{
		CaptureWidth:  640,
		CaptureHeight: 800,
		OutputWidth:   640,
		OutputHeight:  480,
		CodeSize:      160,
	}
}

// capture with every pixel encoding its own coordinates, so crops can be
// verified byte by byte.
func patternCapture(g Geometry, ts int64) *Frame {
	f := &Frame{
		Width:     g.CaptureWidth,
		Height:    g.CaptureHeight,
		Timestamp: ts,
		Data:      make([]byte, Size(g.CaptureWidth, g.CaptureHeight)),
	}
	for y := 0; y < g.CaptureHeight; y++ {
		for x := 0; x < g.CaptureWidth; x++ {
			off := (y*g.CaptureWidth + x) * PixelSize
			f.Data[off] = byte(x)
			f.Data[off+1] = byte(y)
			f.Data[off+2] = byte(x ^ y)
		}
	}
	return f
}

func TestSplitViewsShareTimestamp(t *testing.T) {
	g := testGeometry()
	require.NoError(t, g.Validate())

	pair, err := g.Split(patternCapture(g, 1700000000000))
	require.NoError(t, err)

	assert.Equal(t, int64(1700000000000), pair.Primary.Timestamp)
	assert.Equal(t, int64(1700000000000), pair.Code.Timestamp)
}

func TestSplitCropsAreDeterministic(t *testing.T) {
	g := testGeometry()
	capture := patternCapture(g, 42)

	pair, err := g.Split(capture)
	require.NoError(t, err)

	require.Equal(t, Size(g.OutputWidth, g.OutputHeight), len(pair.Primary.Data))
	require.Equal(t, Size(g.CodeSize, g.CodeSize), len(pair.Code.Data))

	// Primary is the top-left region: pixel (x, y) of the view is pixel
	// (x, y) of the capture.
	for _, p := range [][2]int{{0, 0}, {10, 7}, {g.OutputWidth - 1, g.OutputHeight - 1}} {
		x, y := p[0], p[1]
		off := (y*g.OutputWidth + x) * PixelSize
		assert.Equal(t, byte(x), pair.Primary.Data[off])
		assert.Equal(t, byte(y), pair.Primary.Data[off+1])
	}

	// Code view is the bottom-right square of the capture.
	x0 := g.CaptureWidth - g.CodeSize
	y0 := g.CaptureHeight - g.CodeSize
	for _, p := range [][2]int{{0, 0}, {5, 9}, {g.CodeSize - 1, g.CodeSize - 1}} {
		x, y := p[0], p[1]
		off := (y*g.CodeSize + x) * PixelSize
		assert.Equal(t, byte(x0+x), pair.Code.Data[off])
		assert.Equal(t, byte(y0+y), pair.Code.Data[off+1])
	}

	// Second split of the same capture yields identical bytes.
	pair2, err := g.Split(capture)
	require.NoError(t, err)
	assert.Equal(t, pair.Primary.Data, pair2.Primary.Data)
	assert.Equal(t, pair.Code.Data, pair2.Code.Data)
}

func TestSplitCopiesDoNotAliasCapture(t *testing.T) {
	g := testGeometry()
	capture := patternCapture(g, 1)

	pair, err := g.Split(capture)
	require.NoError(t, err)

	before := pair.Primary.Data[0]
	capture.Data[0] ^= 0xFF
	assert.Equal(t, before, pair.Primary.Data[0])
}

func TestGeometryValidateRejectsOverlap(t *testing.T) {
	g := Geometry{
		CaptureWidth:  320,
		CaptureHeight: 240,
		OutputWidth:   320,
		OutputHeight:  240,
		CodeSize:      160,
	}
	assert.Error(t, g.Validate())

	// Full-width primary is fine as long as it stays above the code rows.
	g.OutputHeight = 80
	assert.NoError(t, g.Validate())
}

func TestGeometryValidateRejectsBadSizes(t *testing.T) {
	g := testGeometry()
	g.CodeSize = 0
	assert.Error(t, g.Validate())

	g = testGeometry()
	g.OutputWidth = g.CaptureWidth + 1
	assert.Error(t, g.Validate())
}

func TestSplitRejectsWrongBuffer(t *testing.T) {
	g := testGeometry()
	_, err := g.Split(&Frame{Width: 10, Height: 10, Data: make([]byte, 300)})
	assert.Error(t, err)

	_, err = g.Split(&Frame{Width: g.CaptureWidth, Height: g.CaptureHeight, Data: []byte{1, 2, 3}})
	assert.Error(t, err)
}

func TestClockFallsBackToUTC(t *testing.T) {
	c, err := NewClock("Not/AZone")
	assert.Error(t, err)
	require.NotNil(t, c)
	assert.NotZero(t, c.NowMillis())
}

func TestClockFormatMillis(t *testing.T) {
	c, err := NewClock("UTC")
	require.NoError(t, err)
	assert.Equal(t, "2023-11-14 22:13:20", c.FormatMillis(1700000000000))
}

func TestBlank(t *testing.T) {
	b := Blank(640, 480, 7)
	assert.Equal(t, Size(640, 480), len(b.Data))
	assert.Equal(t, int64(7), b.Timestamp)
	for _, v := range b.Data[:64] {
		assert.Zero(t, v)
	}
}
