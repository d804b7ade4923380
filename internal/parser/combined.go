package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Generic combined log with optional cache status and request time:
	// 1.2.3.4 - - [01/Jan/2024:00:00:00 +0000] "GET /steam/depot/1 HTTP/1.1" 200 2048 "-" "-" "HIT" 0.003
	// Matching is anchored at the front; extra trailing fields are tolerated.
	combinedRe = regexp.MustCompile(`^(\S+) \S+ \S+ \[([^\]]+)\] "([^"]*)" (\d{3}) (\S+) "([^"]*)" "([^"]*)"(?: "([^"]*)")?(?: ([0-9]+\.[0-9]+))?`)
)

type combinedParser struct{}

func newCombinedParser() *combinedParser {
	return &combinedParser{}
}

func (p *combinedParser) Parse(line string) (*Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrEmptyLine
	}

	m := combinedRe.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("combined: %w", ErrMalformed)
	}

	status, err := strconv.Atoi(m[4])
	if err != nil {
		return nil, fmt.Errorf("combined: bad status %q: %w", m[4], ErrMalformed)
	}

	method, path, proto := splitRequestLine(m[3])

	var responseTime float64
	if m[9] != "" {
		responseTime, _ = strconv.ParseFloat(m[9], 64)
	}

	return &Event{
		RemoteAddr:   m[1],
		Timestamp:    m[2],
		Method:       method,
		Path:         path,
		Protocol:     proto,
		Status:       status,
		Bytes:        parseBytes(m[5]),
		Referrer:     m[6],
		UserAgent:    m[7],
		HitStatus:    m[8],
		ResponseTime: responseTime,
		Raw:          line,
	}, nil
}
