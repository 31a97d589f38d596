package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
)

const dateLayout = "2006-01-02"

func decodeEntitlement(w http.ResponseWriter, r *http.Request) (entitlementRequest, bool) {
	var req entitlementRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return req, false
	}
	if req.Entitled == nil {
		writeError(w, http.StatusBadRequest, "bad_json", "entitled is required")
		return req, false
	}
	return req, true
}

// parseRange reads from/to as RFC 3339 timestamps or local dates. Missing
// values default to today so far.
func (s *Server) parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := time.Now().In(s.loc)
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	to := now

	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &from}, {"to", &to}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		t, err := s.parseTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+p.key, "expected RFC 3339 time or YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		*p.dst = t
	}
	return from, to, true
}

func (s *Server) parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, raw, s.loc)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
