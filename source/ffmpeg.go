package source

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// ffmpegStream ties the decoder's stdout to its process so that closing
// the stream also reaps the child.
type ffmpegStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *ffmpegStream) Close() error {
	s.ReadCloser.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	return s.cmd.Wait()
}

// FFmpegStarter launches ffmpeg decoding the clip to raw BGR frames on
// stdout. -re paces output at the clip's native rate and -stream_loop -1
// loops it forever, so the stream only ends if ffmpeg dies.
func FFmpegStarter(video string, fps int) Starter {
	return func(ctx context.Context) (io.ReadCloser, error) {
		cmd := exec.CommandContext(ctx, "ffmpeg",
			"-hide_banner", "-loglevel", "error",
			"-re",
			"-stream_loop", "-1",
			"-i", video,
			"-f", "rawvideo",
			"-pix_fmt", "bgr24",
			"-r", strconv.Itoa(fps),
			"-",
		)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start ffmpeg: %w", err)
		}
		return &ffmpegStream{ReadCloser: stdout, cmd: cmd}, nil
	}
}
