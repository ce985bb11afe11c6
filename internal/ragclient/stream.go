package ragclient

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// Stream is one in-flight assistant reply: a lazy, finite,
// non-restartable sequence of text fragments. Recv returns io.EOF when
// the backend finishes. Fragments are decoded so that a UTF-8 rune
// split across transport chunks is never emitted in halves; the
// trailing incomplete bytes are held back until the rest arrives.
type Stream struct {
	body    io.ReadCloser
	buf     []byte
	pending []byte
	done    bool
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{
		body: body,
		buf:  make([]byte, 4096),
	}
}

// Recv returns the next text fragment, io.EOF on completion, or a
// transport error. After any error the stream is exhausted.
func (s *Stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			chunk := make([]byte, 0, len(s.pending)+n)
			chunk = append(chunk, s.pending...)
			chunk = append(chunk, s.buf[:n]...)
			complete, rest := splitCompleteRunes(chunk)
			s.pending = append([]byte(nil), rest...)
			if len(complete) > 0 && err == nil {
				return string(complete), nil
			}
			if err == nil {
				continue
			}
			// the read also reported an error; fold the held-back tail
			// into this final fragment before surfacing it
			complete = append(complete, s.pending...)
			s.pending = nil
			s.finish()
			if err == io.EOF {
				if len(complete) > 0 {
					return string(complete), nil
				}
				return "", io.EOF
			}
			return "", fmt.Errorf("read stream: %w", err)
		}
		if err == nil {
			continue
		}
		s.finish()
		if err == io.EOF {
			if len(s.pending) > 0 {
				out := string(s.pending)
				s.pending = nil
				return out, nil
			}
			return "", io.EOF
		}
		return "", fmt.Errorf("read stream: %w", err)
	}
}

// Close releases the underlying response body. Safe to call more than once.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.finish()
	return nil
}

func (s *Stream) finish() {
	s.done = true
	s.body.Close()
}

// splitCompleteRunes splits b so that complete holds only whole UTF-8
// runes and rest holds the trailing bytes of a rune still in flight.
// Byte sequences that cannot start a rune at all are passed through
// verbatim rather than held forever.
func splitCompleteRunes(b []byte) (complete, rest []byte) {
	if len(b) == 0 {
		return nil, nil
	}
	lim := len(b) - utf8.UTFMax
	if lim < 0 {
		lim = 0
	}
	j := len(b) - 1
	for j >= lim && !utf8.RuneStart(b[j]) {
		j--
	}
	if j < lim {
		// no rune boundary within reach: malformed input, emit as-is
		return b, nil
	}
	if utf8.FullRune(b[j:]) {
		return b, nil
	}
	return b[:j], b[j:]
}
