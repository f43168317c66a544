package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiable is returned for a well-formed range that starts past
// the end of the file.
var ErrUnsatisfiable = errors.New("range not satisfiable")

// RangeParseError reports a Range header that could not be understood.
// Servers answer such requests with the full body.
type RangeParseError struct {
	Header string
	Reason string
}

func (e *RangeParseError) Error() string {
	return fmt.Sprintf("malformed range %q: %s", e.Header, e.Reason)
}

// Range is an inclusive byte span.
type Range struct {
	Start int64
	End   int64
}

// Length is the number of bytes the range covers.
func (r Range) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range value for a file of size bytes.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a single "bytes=start-end" range against size. An
// omitted end means the last byte and an end past the file is clamped.
// The suffix form "bytes=-n" selects the last n bytes.
func ParseRange(header string, size int64) (Range, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return Range{}, &RangeParseError{Header: header, Reason: "unit is not bytes"}
	}
	if strings.Contains(spec, ",") {
		return Range{}, &RangeParseError{Header: header, Reason: "multiple ranges"}
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return Range{}, &RangeParseError{Header: header, Reason: "missing '-'"}
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return Range{}, &RangeParseError{Header: header, Reason: "invalid suffix length"}
		}
		if size == 0 {
			return Range{}, ErrUnsatisfiable
		}
		if n > size {
			n = size
		}
		return Range{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return Range{}, &RangeParseError{Header: header, Reason: "invalid start"}
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return Range{}, &RangeParseError{Header: header, Reason: "invalid end"}
		}
		if end < start {
			return Range{}, &RangeParseError{Header: header, Reason: "end before start"}
		}
	}

	if start >= size {
		return Range{}, ErrUnsatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return Range{Start: start, End: end}, nil
}
