// Package readerproto is the text protocol spoken by the meal-hall card
// readers: an HTTP-shaped request carrying key=value parameters, answered
// by a single comma-delimited "Response=" record.
package readerproto

import (
	"bytes"
	"strconv"
	"strings"
)

// Params is the decoded parameter set of one request.
type Params map[string]string

func (p Params) Get(key string) string { return p[key] }

// ParseParams extracts the parameter set from a raw request. GET requests
// carry it in the query string of the first line; POST requests in the
// last line, optionally as a flat {"k":"v",...} document. Anything else
// yields an empty set.
func ParseParams(raw string) Params {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return Params{}
	}

	var query string
	switch {
	case strings.HasPrefix(raw, "GET"):
		first := lines[0]
		start := strings.IndexByte(first, '?')
		end := strings.Index(first, " HTTP/")
		if start < 0 || end <= start+1 {
			return Params{}
		}
		query = first[start+1 : end]

	case strings.HasPrefix(raw, "POST"):
		query = lines[len(lines)-1]
		if hasJSONContentType(lines) {
			query = flattenJSON(query)
		}

	default:
		return Params{}
	}

	params := Params{}
	for _, field := range strings.Split(query, "&") {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return params
}

// splitLines splits on \n, \r\n or \r without producing a trailing empty
// element for a final line break.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func hasJSONContentType(lines []string) bool {
	for _, l := range lines {
		name, value, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Type") &&
			strings.Contains(strings.ToLower(value), "application/json") {
			return true
		}
	}
	return false
}

// flattenJSON rewrites {"a":"1","b":2} as a=1&b=2 by character
// substitution. Nested or quoted delimiters are not supported.
var jsonFlattener = strings.NewReplacer(
	"{", "",
	"}", "",
	`"`, "",
	":", "=",
	",", "&",
)

func flattenJSON(s string) string {
	return jsonFlattener.Replace(s)
}

// Complete reports whether buf holds a whole request: the request line for
// GET, the headers plus Content-Length bytes of body for POST. Callers
// still parse a partial buffer when the read deadline expires.
func Complete(buf []byte) bool {
	switch {
	case bytes.HasPrefix(buf, []byte("GET")):
		return bytes.IndexByte(buf, '\n') >= 0
	case bytes.HasPrefix(buf, []byte("POST")):
		end := bytes.Index(buf, []byte("\r\n\r\n"))
		sep := 4
		if end < 0 {
			end = bytes.Index(buf, []byte("\n\n"))
			sep = 2
		}
		if end < 0 {
			return false
		}
		body := buf[end+sep:]
		n, ok := contentLength(buf[:end])
		if !ok {
			return len(bytes.TrimSpace(body)) > 0
		}
		return len(body) >= n
	}
	// Unknown verbs are rejected as soon as anything arrives.
	return len(buf) >= 4 || bytes.IndexByte(buf, '\n') >= 0
}

func contentLength(header []byte) (int, bool) {
	for _, l := range splitLines(string(header)) {
		name, value, ok := strings.Cut(l, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
