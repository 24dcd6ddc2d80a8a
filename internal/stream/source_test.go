package stream

import "io"

// sliceSource replays fixed fragments, optionally ending with an error.
type sliceSource struct {
	fragments []string
	err       error
	pos       int
	closed    bool
}

func newSliceSource(fragments []string, err error) *sliceSource {
	return &sliceSource{fragments: fragments, err: err}
}

func (s *sliceSource) Recv() (string, error) {
	if s.closed {
		return "", io.ErrClosedPipe
	}
	if s.pos < len(s.fragments) {
		f := s.fragments[s.pos]
		s.pos++
		return f, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *sliceSource) Close() { s.closed = true }
