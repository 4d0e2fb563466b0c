package source

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/camloop/camsim/frame"
)

// TimestampOverlay paints the wall-clock string onto the top-left corner
// of the capture, on a filled backdrop so it stays readable over bright
// footage.
type TimestampOverlay struct{}

var overlayBackdrop = image.Rect(5, 5, 300, 40)

func (TimestampOverlay) Draw(f *frame.Frame, text string) {
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return
	}
	defer mat.Close()
	gocv.Rectangle(&mat, overlayBackdrop, color.RGBA{A: 255}, -1)
	gocv.PutText(&mat, text, image.Pt(10, 30),
		gocv.FontHersheySimplex, 0.8, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 2)
	copy(f.Data, mat.ToBytes())
}
