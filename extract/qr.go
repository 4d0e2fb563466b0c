package extract

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/camloop/camsim/frame"
)

// QRDecoder reads QR codes from BGR frames. Not safe for concurrent use;
// the extractor calls it from a single goroutine.
type QRDecoder struct {
	det gocv.QRCodeDetector
}

func NewQRDecoder() *QRDecoder {
	return &QRDecoder{det: gocv.NewQRCodeDetector()}
}

func (d *QRDecoder) Decode(f *frame.Frame) (string, error) {
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return "", fmt.Errorf("wrap frame: %w", err)
	}
	defer mat.Close()

	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	return d.det.DetectAndDecode(mat, &points, &straight), nil
}

func (d *QRDecoder) Close() error {
	return d.det.Close()
}
