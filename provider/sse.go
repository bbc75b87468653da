package provider

import (
	"bufio"
	"io"
	"strings"
)

// maxSSELineSize bounds a single SSE line. Tool-call argument frames can be
// far larger than bufio.Scanner's 64 KiB default.
const maxSSELineSize = 1 << 20

// sseDone is the OpenAI-style end-of-stream sentinel.
const sseDone = "[DONE]"

// sseReader yields the data payload of each Server-Sent Event. Comment lines
// (":" prefix) and non-data fields are ignored; consecutive data lines of one
// event are joined with "\n".
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &sseReader{scanner: scanner}
}

// Next returns the next event payload. It returns io.EOF at the end of the
// body or when the [DONE] sentinel arrives.
func (r *sseReader) Next() (string, error) {
	var data []string

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if len(data) > 0 {
				payload := strings.Join(data, "\n")
				if payload == sseDone {
					return "", io.EOF
				}
				return payload, nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		// Many servers omit the blank line after [DONE].
		if value == sseDone && len(data) == 0 {
			return "", io.EOF
		}
		data = append(data, value)
	}

	if err := r.scanner.Err(); err != nil {
		return "", err
	}

	// Body ended without a trailing blank line.
	if len(data) > 0 {
		payload := strings.Join(data, "\n")
		if payload == sseDone {
			return "", io.EOF
		}
		return payload, nil
	}
	return "", io.EOF
}
