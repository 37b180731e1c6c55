package sse

import (
	"bufio"
	"io"
	"strings"
)

// Reader parses an event stream into the data payload of each frame.
// Frames are terminated by a blank line; multiple data lines are joined with
// "\n". Comment lines and other fields are ignored.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the data of the next frame. It returns io.EOF once the stream
// is exhausted; a trailing frame without its blank line is still delivered.
func (sr *Reader) Next() (string, error) {
	var data []string
	for {
		line, err := sr.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		eof := err == io.EOF

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if eof {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			return "", io.EOF
		}
	}
}
