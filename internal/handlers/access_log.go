package handlers

import (
	"io"
	"log"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// redactedParams never reach the access log.
var redactedParams = []string{"access_token"}

// accessLogFormatter is chi's default request line with credentials masked.
type accessLogFormatter struct {
	chimw.DefaultLogFormatter
}

func newAccessLogger(out io.Writer) func(http.Handler) http.Handler {
	return chimw.RequestLogger(&accessLogFormatter{
		DefaultLogFormatter: chimw.DefaultLogFormatter{
			Logger:  log.New(out, "", log.LstdFlags),
			NoColor: true,
		},
	})
}

func (f *accessLogFormatter) NewLogEntry(r *http.Request) chimw.LogEntry {
	return f.DefaultLogFormatter.NewLogEntry(redactRequest(r))
}

// redactRequest returns a shallow copy of r whose URL has every sensitive
// query value replaced. r itself is left untouched.
func redactRequest(r *http.Request) *http.Request {
	if r.URL == nil || r.URL.RawQuery == "" {
		return r
	}
	q := r.URL.Query()
	changed := false
	for _, name := range redactedParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return r
	}

	u := *r.URL
	u.RawQuery = q.Encode()
	clean := r.WithContext(r.Context())
	clean.URL = &u
	clean.RequestURI = u.RequestURI()
	return clean
}
