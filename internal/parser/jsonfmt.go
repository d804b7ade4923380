package parser

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Some deployments configure nginx to write the access log as JSON, one
// object per line:
// {"remote_addr":"1.2.3.4","time_local":"01/Jan/2024:00:00:00 +0000","host":"steam.cache.lan","request":"GET /depot/1 HTTP/1.1","status":200,"body_bytes_sent":2048,"http_referer":"-","http_user_agent":"-","upstream_cache_status":"HIT","request_time":0.003}

type jsonLine struct {
	RemoteAddr   string  `json:"remote_addr"`
	TimeLocal    string  `json:"time_local"`
	Host         string  `json:"host"`
	Request      string  `json:"request"`
	Status       int     `json:"status"`
	BodyBytes    int64   `json:"body_bytes_sent"`
	Referer      string  `json:"http_referer"`
	UserAgent    string  `json:"http_user_agent"`
	CacheStatus  string  `json:"upstream_cache_status"`
	UpstreamAddr string  `json:"upstream_addr"`
	RequestTime  float64 `json:"request_time"`
}

type jsonParser struct{}

func newJSONParser() *jsonParser {
	return &jsonParser{}
}

func (p *jsonParser) Parse(line string) (*Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrEmptyLine
	}

	var jl jsonLine
	if err := json.Unmarshal([]byte(line), &jl); err != nil {
		return nil, fmt.Errorf("json: %w", ErrMalformed)
	}
	if jl.RemoteAddr == "" || jl.Status == 0 {
		return nil, fmt.Errorf("json: missing remote_addr or status: %w", ErrMalformed)
	}

	method, path, proto := splitRequestLine(jl.Request)

	bytes := jl.BodyBytes
	if bytes < 0 {
		bytes = 0
	}

	return &Event{
		RemoteAddr:   jl.RemoteAddr,
		Timestamp:    jl.TimeLocal,
		Host:         jl.Host,
		Method:       method,
		Path:         path,
		Protocol:     proto,
		Status:       jl.Status,
		Bytes:        bytes,
		Referrer:     jl.Referer,
		UserAgent:    jl.UserAgent,
		HitStatus:    jl.CacheStatus,
		Upstream:     jl.UpstreamAddr,
		ResponseTime: jl.RequestTime,
		Raw:          line,
	}, nil
}
