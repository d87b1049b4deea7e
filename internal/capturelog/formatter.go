package capturelog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DefaultTemplate = "{timestamp}\t{request_id}\t{source}\t{format}\t{outcome}\t{status_code}\t{url}\t{bytes}\t{duration}\t{error_type}"

type placeholder struct {
	field      string
	start, end int
}

// Formatter renders events through a template of {field} placeholders.
// Empty values render as "-".
type Formatter struct {
	template     string
	placeholders []placeholder
}

var fields = map[string]func(*Event) string{
	"timestamp":            func(e *Event) string { return e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z") },
	"request_id":           func(e *Event) string { return quoted(e.RequestID) },
	"source":               func(e *Event) string { return quoted(e.Source) },
	"client_ip":            func(e *Event) string { return quoted(e.ClientIP) },
	"url":                  func(e *Event) string { return quoted(e.URL) },
	"final_url":            func(e *Event) string { return quoted(e.FinalURL) },
	"format":               func(e *Event) string { return quoted(e.Format) },
	"outcome":              func(e *Event) string { return quoted(e.Outcome) },
	"status_code":          func(e *Event) string { return strconv.Itoa(e.StatusCode) },
	"bytes":                func(e *Event) string { return strconv.Itoa(e.Bytes) },
	"duration":             func(e *Event) string { return seconds(e.Duration) },
	"title":                func(e *Event) string { return quoted(e.Title) },
	"error_type":           func(e *Event) string { return quoted(e.ErrorType) },
	"error_message":        func(e *Event) string { return quoted(e.ErrorMessage) },
	"total_requests":       func(e *Event) string { return strconv.Itoa(e.TotalRequests) },
	"total_bytes":          func(e *Event) string { return strconv.FormatInt(e.TotalBytes, 10) },
	"third_party_requests": func(e *Event) string { return strconv.Itoa(e.ThirdPartyRequests) },
	"blocked_count":        func(e *Event) string { return strconv.Itoa(e.BlockedCount) },
	"failed_count":         func(e *Event) string { return strconv.Itoa(e.FailedCount) },
}

// NewFormatter parses template, rejecting unknown placeholders
func NewFormatter(template string) (*Formatter, error) {
	if template == "" {
		return nil, fmt.Errorf("template cannot be empty")
	}

	f := &Formatter{template: template}
	for i := 0; i < len(template); {
		start := strings.IndexByte(template[i:], '{')
		if start == -1 {
			break
		}
		start += i
		end := strings.IndexByte(template[start:], '}')
		if end == -1 {
			return nil, fmt.Errorf("unclosed placeholder at position %d", start)
		}
		end += start

		name := template[start+1 : end]
		if name == "" {
			return nil, fmt.Errorf("empty placeholder at position %d", start)
		}
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("unknown placeholder {%s}", name)
		}
		f.placeholders = append(f.placeholders, placeholder{field: name, start: start, end: end + 1})
		i = end + 1
	}
	return f, nil
}

// Format renders ev
func (f *Formatter) Format(ev *Event) string {
	var sb strings.Builder
	last := 0
	for _, p := range f.placeholders {
		sb.WriteString(f.template[last:p.start])
		sb.WriteString(fields[p.field](ev))
		last = p.end
	}
	sb.WriteString(f.template[last:])
	return sb.String()
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

func quoted(s string) string {
	if s == "" {
		return "-"
	}
	return `"` + escaper.Replace(s) + `"`
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
