package rtsp

import "github.com/bluenviron/mediacommon/pkg/codecs/h264"

// auSplitter segments a continuous Annex-B H.264 byte stream into access
// units. The encoder is configured to emit access unit delimiters, which
// mark the boundaries; the delimiters themselves are consumed.
type auSplitter struct {
	pending []byte
	current [][]byte
}

// Push feeds another chunk of the byte stream. Completed access units are
// handed to emit in order.
func (s *auSplitter) Push(chunk []byte, emit func([][]byte)) {
	s.pending = append(s.pending, chunk...)
	for {
		start, payload := findStartCode(s.pending, 0)
		if start < 0 {
			return
		}
		next, _ := findStartCode(s.pending, payload)
		if next < 0 {
			// NALU still incomplete, wait for more bytes.
			if start > 0 {
				s.pending = append([]byte(nil), s.pending[start:]...)
			}
			return
		}
		nalu := trimTrailingZeros(s.pending[payload:next])
		s.take(append([]byte(nil), nalu...), emit)
		s.pending = append([]byte(nil), s.pending[next:]...)
	}
}

// Flush emits whatever is buffered once the stream has ended.
func (s *auSplitter) Flush(emit func([][]byte)) {
	if start, payload := findStartCode(s.pending, 0); start >= 0 {
		if nalu := trimTrailingZeros(s.pending[payload:]); len(nalu) > 0 {
			s.take(append([]byte(nil), nalu...), emit)
		}
	}
	s.pending = nil
	if len(s.current) > 0 {
		emit(s.current)
		s.current = nil
	}
}

func (s *auSplitter) take(nalu []byte, emit func([][]byte)) {
	if len(nalu) == 0 {
		return
	}
	if h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeAccessUnitDelimiter {
		if len(s.current) > 0 {
			emit(s.current)
			s.current = nil
		}
		return
	}
	s.current = append(s.current, nalu)
}

// findStartCode locates the next 00 00 01 sequence at or after from,
// returning its offset and the offset of the NALU payload behind it.
func findStartCode(b []byte, from int) (int, int) {
	for i := from; i+2 < len(b); i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			return i, i + 3
		}
	}
	return -1, -1
}

// trimTrailingZeros strips the padding left behind by 4-byte start codes
// of the following NALU.
func trimTrailingZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}
