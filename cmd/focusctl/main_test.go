package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/focusguard/backend/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "user-1", "--secret", "s3cret")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if strings.Count(strings.TrimSpace(out), ".") != 2 {
		t.Errorf("output is not a JWT: %q", out)
	}

	if _, err := run(t, "token", "user-1", "--secret", ""); err == nil {
		t.Error("expected error without a secret")
	}
}

func TestSitesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sites" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(models.NewSuccessResponse([]models.BlockedSite{
			{ID: "s1", Domain: "reddit.com", Always: true},
			{ID: "s2", Domain: "x.com"},
		}))
	}))
	defer srv.Close()

	out, err := run(t, "--server", srv.URL, "--token", "t", "sites", "list")
	if err != nil {
		t.Fatalf("sites list: %v", err)
	}
	if !strings.Contains(out, "s1\treddit.com\talways") || !strings.Contains(out, "s2\tx.com\tscheduled") {
		t.Errorf("output = %q", out)
	}
}

func TestSessionStatusNoSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.NewErrorResponse("Not found"))
	}))
	defer srv.Close()

	out, err := run(t, "--server", srv.URL, "session", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "no active session") {
		t.Errorf("output = %q", out)
	}
}

func TestSessionStartRejectsBadMinutes(t *testing.T) {
	if _, err := run(t, "session", "start", "ten"); err == nil {
		t.Error("expected error for non-numeric minutes")
	}
}
