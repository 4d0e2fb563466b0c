package rtsp

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// Encoder turns raw BGR frames into H.264 access units. Write accepts one
// frame; completed access units appear on Units. Units is closed once the
// encoder's output ends.
type Encoder interface {
	Write(raw []byte) error
	Units() <-chan [][]byte
	Close() error
}

// EncoderFactory opens a fresh encoder. Each session gets its own so that
// every client starts at a keyframe with its own timeline.
type EncoderFactory func(ctx context.Context) (Encoder, error)

type x264Encoder struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	units chan [][]byte
}

// NewX264Factory builds encoders backed by an ffmpeg libx264 subprocess.
// zerolatency keeps it one-frame-in, one-frame-out; aud=1 gives the
// splitter its access unit boundaries.
func NewX264Factory(width, height, fps int) EncoderFactory {
	return func(ctx context.Context) (Encoder, error) {
		cmd := exec.CommandContext(ctx, "ffmpeg",
			"-hide_banner", "-loglevel", "error",
			"-f", "rawvideo",
			"-pix_fmt", "bgr24",
			"-video_size", fmt.Sprintf("%dx%d", width, height),
			"-framerate", strconv.Itoa(fps),
			"-i", "-",
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-tune", "zerolatency",
			"-bf", "0",
			"-x264-params", fmt.Sprintf("aud=1:keyint=%d", fps*2),
			"-f", "h264",
			"-",
		)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("encoder stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("encoder stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start encoder: %w", err)
		}

		e := &x264Encoder{
			cmd:   cmd,
			stdin: stdin,
			units: make(chan [][]byte, 8),
		}
		go e.read(stdout)
		return e, nil
	}
}

func (e *x264Encoder) read(stdout io.Reader) {
	defer close(e.units)
	var split auSplitter
	emit := func(au [][]byte) { e.units <- au }
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			split.Push(buf[:n], emit)
		}
		if err != nil {
			split.Flush(emit)
			return
		}
	}
}

func (e *x264Encoder) Write(raw []byte) error {
	_, err := e.stdin.Write(raw)
	return err
}

func (e *x264Encoder) Units() <-chan [][]byte {
	return e.units
}

func (e *x264Encoder) Close() error {
	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	return e.cmd.Wait()
}
