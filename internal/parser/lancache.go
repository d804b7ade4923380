package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Cache-tagged format written by lancache-style nginx proxies; the
	// leading bracket names the upstream the vhost mapped the request to:
	// [steam] 1.2.3.4 / - - - [01/Jan/2024:00:00:00 +0000] "GET /depot/1 HTTP/1.1" 200 2048 "-" "Valve/Steam HTTP Client 1.0" "HIT" "192.168.0.10" "-"
	lancacheRe = regexp.MustCompile(`^\[([^\]]+)\] (\S+) / - - - \[([^\]]+)\] "([^"]*)" (\d{3}) (\S+) "([^"]*)" "([^"]*)" "([^"]*)" "([^"]*)" "-"`)
)

type lancacheParser struct{}

func newLancacheParser() *lancacheParser {
	return &lancacheParser{}
}

func (p *lancacheParser) Parse(line string) (*Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrEmptyLine
	}

	m := lancacheRe.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("lancache: %w", ErrMalformed)
	}

	status, err := strconv.Atoi(m[5])
	if err != nil {
		return nil, fmt.Errorf("lancache: bad status %q: %w", m[5], ErrMalformed)
	}

	method, path, proto := splitRequestLine(m[4])

	return &Event{
		CDNTag:     m[1],
		RemoteAddr: m[2],
		Timestamp:  m[3],
		Method:     method,
		Path:       path,
		Protocol:   proto,
		Status:     status,
		Bytes:      parseBytes(m[6]),
		Referrer:   m[7],
		UserAgent:  m[8],
		HitStatus:  m[9],
		Upstream:   m[10],
		Raw:        line,
	}, nil
}
