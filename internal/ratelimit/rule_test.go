package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRuleApplies(t *testing.T) {
	tests := []struct {
		name   string
		rule   Rule
		method string
		path   string
		want   bool
	}{
		{
			name:   "empty rule matches everything",
			rule:   Rule{Name: "global"},
			method: http.MethodGet,
			path:   "/anything",
			want:   true,
		},
		{
			name:   "path prefix matches",
			rule:   Rule{Name: "auth", Path: "/api/auth"},
			method: http.MethodGet,
			path:   "/api/auth/login",
			want:   true,
		},
		{
			name:   "path prefix rejects",
			rule:   Rule{Name: "auth", Path: "/api/auth"},
			method: http.MethodGet,
			path:   "/api/posts",
			want:   false,
		},
		{
			name:   "method list matches case insensitively",
			rule:   Rule{Name: "login", Methods: []string{"post"}},
			method: http.MethodPost,
			path:   "/api/auth/login",
			want:   true,
		},
		{
			name:   "method list rejects",
			rule:   Rule{Name: "login", Methods: []string{http.MethodPost}},
			method: http.MethodGet,
			path:   "/api/auth/login",
			want:   false,
		},
		{
			name: "condition rejects",
			rule: Rule{
				Name:      "conditional",
				Condition: func(r *http.Request) bool { return r.Header.Get("X-Flag") != "" },
			},
			method: http.MethodGet,
			path:   "/",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if got := tt.rule.Applies(req); got != tt.want {
				t.Errorf("Applies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortRulesStable(t *testing.T) {
	rules := []Rule{
		{Name: "c", Priority: 200},
		{Name: "a", Priority: 50},
		{Name: "b1", Priority: 100},
		{Name: "b2", Priority: 100},
	}
	sortRules(rules)

	wantOrder := []string{"a", "b1", "b2", "c"}
	for i, want := range wantOrder {
		if rules[i].Name != want {
			t.Errorf("rules[%d] = %s, want %s", i, rules[i].Name, want)
		}
	}
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	byName := make(map[string]Rule, len(rules))
	for _, ru := range rules {
		byName[ru.Name] = ru
	}

	login, ok := byName["auth-login"]
	if !ok {
		t.Fatal("auth-login rule missing")
	}
	if login.Config.MaxRequests != 5 || login.Config.Window != 15*time.Minute {
		t.Errorf("auth-login config = %+v", login.Config)
	}

	global, ok := byName["global"]
	if !ok {
		t.Fatal("global rule missing")
	}
	if global.Path != "" {
		t.Errorf("global rule should match every path, got %q", global.Path)
	}

	// A POST to the login endpoint matches the login rule, the general auth
	// rule, the API rule, and the global rule, in that priority order.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	sorted := append([]Rule(nil), rules...)
	sortRules(sorted)
	var matched []string
	for _, ru := range sorted {
		if ru.Applies(req) {
			matched = append(matched, ru.Name)
		}
	}
	want := []string{"auth-login", "auth-general", "api-general", "global"}
	if len(matched) != len(want) {
		t.Fatalf("matched %v, want %v", matched, want)
	}
	for i := range want {
		if matched[i] != want[i] {
			t.Errorf("matched[%d] = %s, want %s", i, matched[i], want[i])
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{"remote addr", "192.0.2.1:9999", "", "", "192.0.2.1"},
		{"forwarded for wins", "192.0.2.1:9999", "203.0.113.7", "", "203.0.113.7"},
		{"forwarded chain takes first", "192.0.2.1:9999", " 203.0.113.7 , 10.0.0.1", "", "203.0.113.7"},
		{"real ip fallback", "192.0.2.1:9999", "", "203.0.113.8", "203.0.113.8"},
		{"ipv6 with port", "[2001:db8::5]:443", "", "", "2001:db8::5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %s, want %s", got, tt.want)
			}
		})
	}
}
