// Package problem writes RFC 7807 error bodies.
package problem

import (
	"encoding/json"
	"net/http"
)

const (
	contentType = "application/problem+json"
	typeBase    = "https://errors.paynxt.dev/"
	traceHeader = "X-Trace-ID"
)

// Details is the problem+json body. RequestID echoes the trace id so a
// client report can be matched to server logs.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Type expands a slug such as "transfer/insufficient-funds" into a type URI.
func Type(slug string) string {
	return typeBase + slug
}

// Write sends a problem response. An empty problemType becomes about:blank
// and an empty title the status text.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	d := Details{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}
	if d.Title == "" {
		d.Title = http.StatusText(status)
	}
	// The trace middleware has already set a sanitized id on the response.
	d.RequestID = w.Header().Get(traceHeader)
	if r != nil {
		d.Instance = r.URL.Path
		if d.RequestID == "" {
			d.RequestID = r.Header.Get(traceHeader)
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(d)
}
