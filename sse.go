package lime2node

import (
	"bufio"
	"bytes"
	"io"
)

// WriteSSE writes payload as a single `data:` event.
func WriteSSE(w io.Writer, payload []byte) error {
	var buf bytes.Buffer
	for line := range bytes.SplitSeq(payload, []byte{'\n'}) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())
	return err
}

// ReadSSE returns the data of the next event. Comments and other fields
// (event, id, retry) are skipped. Multiple data lines are joined with LF.
func ReadSSE(r *bufio.Reader) ([]byte, error) {
	var data [][]byte

	for {
		line, err := r.ReadBytes('\n')
		if err != nil && (err != io.EOF || len(line) == 0) {
			if len(data) > 0 && err == io.EOF {
				return bytes.Join(data, []byte{'\n'}), nil
			}
			return nil, err
		}
		eof := err == io.EOF

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(data) == 0 {
				continue
			}
			return bytes.Join(data, []byte{'\n'}), nil
		}

		if value, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			data = append(data, bytes.TrimPrefix(value, []byte{' '}))
		}

		if eof {
			// Unterminated last line.
			if len(data) == 0 {
				return nil, io.EOF
			}
			return bytes.Join(data, []byte{'\n'}), nil
		}
	}
}
