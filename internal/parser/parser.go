package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Event is a normalized HTTP request extracted from one access log line.
// Timestamps are carried verbatim; nothing downstream interprets them.
type Event struct {
	RemoteAddr string
	Timestamp  string
	Method     string
	Path       string
	Protocol   string
	Status     int
	Bytes      int64

	// HitStatus is the raw upstream cache status token ("HIT", "MISS", ...),
	// empty when the format does not carry one.
	HitStatus string

	// CDNTag is the explicit origin tag from the cache-tagged format,
	// empty for formats that identify the CDN by URL alone.
	CDNTag string

	// Host is the request host for formats that log it separately.
	Host string

	Referrer     string
	UserAgent    string
	Upstream     string
	ResponseTime float64 // seconds, 0 when the format lacks one

	Raw string
}

// Parse failure taxonomy. Callers branch on these with errors.Is; empty
// lines are skipped silently while the rest count as parse errors.
var (
	ErrEmptyLine     = errors.New("empty line")
	ErrMalformed     = errors.New("line does not match expected format")
	ErrUnknownFormat = errors.New("unknown log format")
)

// Parser defines the interface implemented by log line parsers.
type Parser interface {
	Parse(line string) (*Event, error)
}

// New returns a parser implementation by format name.
func New(name string) (Parser, error) {
	switch name {
	case "lancache":
		return newLancacheParser(), nil
	case "combined", "nginx", "nginx_combined":
		return newCombinedParser(), nil
	case "json":
		return newJSONParser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// splitRequestLine breaks a logged request line ("GET /path HTTP/1.1") into
// its parts. Malformed request lines are common in cache logs (scanners,
// raw TCP probes), so missing tokens get defaults instead of failing the
// whole line.
func splitRequestLine(request string) (method, path, proto string) {
	method, path, proto = "GET", "/", "HTTP/1.1"
	parts := strings.Fields(request)
	switch {
	case len(parts) >= 3:
		method, path, proto = parts[0], parts[1], parts[2]
	case len(parts) == 2:
		method, path = parts[0], parts[1]
	case len(parts) == 1:
		method = parts[0]
	}
	return method, path, proto
}

// parseBytes converts a size field to a byte count. Non-numeric values
// ("-") and negatives count as zero rather than failing the line.
func parseBytes(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
