package netops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

// testConfig points an adapter at a httptest server.
func testConfig(t *testing.T, srv *httptest.Server, creds Credentials) Config {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		Host:        u.Hostname(),
		Port:        port,
		UseTLS:      false,
		Timeout:     5 * time.Second,
		Credentials: creds,
	}
}

func TestUbiquitiLoginAndBlock(t *testing.T) {
	var loginCalls, blockCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/login", func(w http.ResponseWriter, r *http.Request) {
		loginCalls++
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "admin" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "session-token"})
	})
	mux.HandleFunc("/api/v2/sites/default/clients", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "client-1", "mac": "aa:bb:cc:dd:ee:ff", "blocked": false},
		})
	})
	mux.HandleFunc("/api/v2/sites/default/clients/client-1/block", func(w http.ResponseWriter, r *http.Request) {
		blockCalls++
		if r.Header.Get("Authorization") != "Bearer session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]bool
		json.NewDecoder(r.Body).Decode(&body)
		if !body["blocked"] {
			t.Error("expected blocked=true in request body")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewUbiquitiAdapter(testConfig(t, srv, Credentials{Username: "admin", Password: "secret"}))

	msg, err := adapter.BlockMAC(context.Background(), "AA:BB:CC:DD:EE:FF", "checkout")
	if err != nil {
		t.Fatalf("BlockMAC: %v", err)
	}
	if msg == "" {
		t.Error("expected a non-empty result message")
	}
	if loginCalls != 1 {
		t.Errorf("login called %d times, want 1", loginCalls)
	}
	if blockCalls != 1 {
		t.Errorf("block called %d times, want 1", blockCalls)
	}

	// Second call reuses the cached session.
	if _, err := adapter.BlockMAC(context.Background(), "AA:BB:CC:DD:EE:FF", "checkout"); err != nil {
		t.Fatalf("second BlockMAC: %v", err)
	}
	if loginCalls != 1 {
		t.Errorf("login called %d times after second op, want 1 (cached session)", loginCalls)
	}
}

func TestUbiquitiBadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewUbiquitiAdapter(testConfig(t, srv, Credentials{Username: "admin", Password: "wrong"}))
	_, err := adapter.TestConnection(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error %T, want *AuthError", err)
	}
	if !IsCountable(err) {
		t.Error("authentication failure must count as an operation failure")
	}
}

func TestMikrotikBlockIdempotent(t *testing.T) {
	var inserts int
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/ip/firewall/filter", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("src-mac-address") == "AA:BB:CC:DD:EE:FF" {
				// Rule already present.
				json.NewEncoder(w).Encode([]map[string]string{
					{".id": "*7", "src-mac-address": "AA:BB:CC:DD:EE:FF"},
				})
				return
			}
			json.NewEncoder(w).Encode([]map[string]string{})
		case http.MethodPost:
			inserts++
			json.NewEncoder(w).Encode(map[string]string{".id": "*8"})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewMikrotikAdapter(testConfig(t, srv, Credentials{Username: "api", Password: "secret"}))

	msg, err := adapter.BlockMAC(context.Background(), "aa:bb:cc:dd:ee:ff", "arrears")
	if err != nil {
		t.Fatalf("BlockMAC: %v", err)
	}
	if inserts != 0 {
		t.Errorf("adapter inserted %d rules for an already-blocked MAC, want 0", inserts)
	}
	if !strings.Contains(msg, "already present") {
		t.Errorf("message %q does not report existing rule", msg)
	}
}

func TestMikrotikUnreachableHostIsTransient(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	adapter := NewMikrotikAdapter(testConfig(t, srv, Credentials{Username: "api", Password: "secret"}))

	_, err := adapter.TestConnection(context.Background())
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("error %T, want *TransientError", err)
	}
	if !IsCountable(err) {
		t.Error("transient failure must count as an operation failure")
	}
}

func TestOpenWrtReauthRetriesOnce(t *testing.T) {
	var logins, sysCalls int
	// Tokens issued in order; "stale" is rejected, "fresh" accepted.
	tokens := []string{"stale", "fresh"}

	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/luci/rpc/auth", func(w http.ResponseWriter, r *http.Request) {
		token := tokens[0]
		if logins < len(tokens) {
			token = tokens[logins]
		}
		logins++
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "result": token})
	})
	mux.HandleFunc("/cgi-bin/luci/rpc/sys", func(w http.ResponseWriter, r *http.Request) {
		sysCalls++
		if r.URL.Query().Get("auth") != "fresh" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "result": "gateway"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewOpenWrtAdapter(testConfig(t, srv, Credentials{Username: "root", Password: "secret"}))

	result, err := adapter.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if !result.Connected {
		t.Error("expected Connected=true after re-authentication")
	}
	if logins != 2 {
		t.Errorf("login called %d times, want 2 (initial + one retry)", logins)
	}
	if sysCalls != 2 {
		t.Errorf("sys endpoint called %d times, want 2", sysCalls)
	}
}

func TestOpenWrtReauthFailsAfterSecondForbidden(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/luci/rpc/auth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "result": "token"})
	})
	mux.HandleFunc("/cgi-bin/luci/rpc/sys", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewOpenWrtAdapter(testConfig(t, srv, Credentials{Username: "root", Password: "secret"}))

	_, err := adapter.TestConnection(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error %T, want *AuthError after exhausted retry", err)
	}
}

func TestOpenWrtBandwidthNotSupported(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/luci/rpc/auth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "result": "token"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewOpenWrtAdapter(testConfig(t, srv, Credentials{Username: "root", Password: "secret"}))

	_, err := adapter.SetBandwidthLimit(context.Background(), "AA:BB:CC:DD:EE:FF", 10)
	var ns *NotSupportedError
	if !errors.As(err, &ns) {
		t.Fatalf("error %T, want *NotSupportedError", err)
	}
}
