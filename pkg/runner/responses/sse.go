package responses

import (
	"bufio"
	"io"
	"strings"
)

// frame is one server-sent event. Comment frames carry no data and are
// used by the server as keep-alives.
type frame struct {
	Event   string
	Data    string
	Comment bool
}

type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next complete frame, io.EOF once the body is exhausted.
// A trailing frame without a blank line terminator is still returned.
func (f *frameReader) Next() (frame, error) {
	var (
		ret     frame
		data    strings.Builder
		hasData bool
	)
	for {
		line, err := f.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if hasData || ret.Event != "" {
				ret.Data = data.String()
				return ret, nil
			}
		case strings.HasPrefix(line, ":"):
			if !hasData && ret.Event == "" {
				return frame{Comment: true}, nil
			}
		case strings.HasPrefix(line, "event:"):
			ret.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			hasData = true
		}

		if err == io.EOF {
			if hasData {
				ret.Data = data.String()
				return ret, nil
			}
			return frame{}, io.EOF
		}
	}
}
