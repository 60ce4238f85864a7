package blocking

import "testing"

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"www.example.com", "example.com"},
		{"  www.Example.com  ", "example.com"},
		{"https://www.example.com/path?q=1#frag", "example.com"},
		{"http://user:pw@m.example.com:8080/x", "m.example.com"},
		{"example.com:443", "example.com"},
		{"example.com.", "example.com"},
		{"www.www.example.com", "www.example.com"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeDomain(tt.in); got != tt.want {
				t.Fatalf("NormalizeDomain(%q) = %q want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHostFromURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		host string
		ok   bool
	}{
		{"https page", "https://www.youtube.com/watch?v=1", "youtube.com", true},
		{"http page", "http://news.ycombinator.com/", "news.ycombinator.com", true},
		{"bare host", "reddit.com", "reddit.com", true},
		{"chrome page", "chrome://extensions", "", false},
		{"extension page", "chrome-extension://abc/blocked.html", "", false},
		{"about blank", "about:blank", "", false},
		{"file", "file:///tmp/a.html", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, ok := HostFromURL(tt.raw)
			if ok != tt.ok || host != tt.host {
				t.Fatalf("HostFromURL(%q) = (%q, %v) want (%q, %v)", tt.raw, host, ok, tt.host, tt.ok)
			}
		})
	}
}

func TestDomainMatches(t *testing.T) {
	tests := []struct {
		name  string
		host  string
		entry string
		want  bool
	}{
		{"exact", "facebook.com", "facebook.com", true},
		{"www on host", "www.facebook.com", "facebook.com", true},
		{"www on entry", "facebook.com", "www.facebook.com", true},
		{"case", "FaceBook.com", "facebook.COM", true},
		{"subdomain of entry", "m.facebook.com", "facebook.com", true},
		{"deep subdomain", "a.b.facebook.com", "facebook.com", true},
		{"entry is subdomain of host", "facebook.com", "m.facebook.com", true},
		{"suffix without dot", "notfacebook.com", "facebook.com", false},
		{"reverse suffix without dot", "facebook.com", "notfacebook.com", false},
		{"different sites", "twitter.com", "facebook.com", false},
		{"sibling subdomains", "m.facebook.com", "l.facebook.com", false},
		{"empty host", "", "facebook.com", false},
		{"empty entry", "facebook.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DomainMatches(tt.host, tt.entry); got != tt.want {
				t.Fatalf("DomainMatches(%q, %q) = %v want %v", tt.host, tt.entry, got, tt.want)
			}
		})
	}
}

func TestIsDomainBlocked(t *testing.T) {
	list := []string{"www.reddit.com", "facebook.com", "news.ycombinator.com"}

	tests := []struct {
		host string
		want bool
	}{
		{"reddit.com", true},
		{"old.reddit.com", true},
		{"m.facebook.com", true},
		{"ycombinator.com", true},
		{"github.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := IsDomainBlocked(tt.host, list); got != tt.want {
				t.Fatalf("IsDomainBlocked(%q) = %v want %v", tt.host, got, tt.want)
			}
		})
	}

	if IsDomainBlocked("reddit.com", nil) {
		t.Fatal("empty list must not block")
	}
}

// The match is symmetric in its arguments once both sides are normalized.
func TestDomainMatchesSymmetric(t *testing.T) {
	domains := []string{"facebook.com", "m.facebook.com", "www.facebook.com", "a.m.facebook.com", "book.com", "twitter.com"}
	for _, a := range domains {
		for _, b := range domains {
			if DomainMatches(a, b) != DomainMatches(b, a) {
				t.Errorf("asymmetric result for %q / %q", a, b)
			}
		}
	}
}

func TestMatchEntryReturnsFirst(t *testing.T) {
	entry, ok := MatchEntry("m.facebook.com", []string{"twitter.com", "m.facebook.com", "facebook.com"})
	if !ok {
		t.Fatal("expected a match")
	}
	if entry != "m.facebook.com" {
		t.Fatalf("entry = %q want m.facebook.com", entry)
	}
}

func TestValidDomain(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"example.com", true},
		{"www.example.co.uk", true},
		{"https://sub-domain.example.com/path", true},
		{"xn--bcher-kva.example", true},
		{"localhost", false},
		{"exa mple.com", false},
		{"-bad.com", false},
		{"bad-.com", false},
		{"a..com", false},
		{"under_score.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ValidDomain(tt.in); got != tt.want {
				t.Fatalf("ValidDomain(%q) = %v want %v", tt.in, got, tt.want)
			}
		})
	}
}
