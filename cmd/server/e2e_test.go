package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/config"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/logging"
)

func testConfig(dbURL, secret string) *config.Config {
	return &config.Config{
		Port:            "0",
		AppEnv:          "test",
		BaseURL:         "http://phantom.test",
		DatabaseURL:     dbURL,
		AgentJWTSecret:  secret,
		ShutdownTimeout: 5 * time.Second,
		Links: config.LinkSettings{
			TTLOptions:    []string{"1h", "6h", "24h", "7d", "30d"},
			DefaultTTL:    "1h",
			FallbackTTL:   "24h",
			SweepInterval: 30 * time.Minute,
			AccessLogCap:  1000,
			RedirectDelay: 3 * time.Second,
		},
		Sync: config.SyncSettings{
			QueueSize:          64,
			WriteTimeout:       5 * time.Second,
			ActionDedupeWindow: 30 * time.Second,
		},
	}
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) frame {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %q frame: %v", want, err)
		}
		if f.Type == want {
			return f
		}
	}
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func TestIntegration(t *testing.T) {
	// 1. Setup app with an in-memory archive
	a, err := newApp(testConfig("file:e2e_integration?mode=memory&cache=shared", ""), logging.Discard())
	if err != nil {
		t.Fatalf("Failed to init app: %v", err)
	}

	server := httptest.NewServer(a.handler)
	defer server.Close()
	client := server.Client()

	// TEST 1: Create Link
	payload := map[string]interface{}{
		"targetUrl": "https://example.com",
		"maxUses":   2,
		"expiresIn": "24h",
	}
	body, _ := json.Marshal(payload)
	resp, err := client.Post(server.URL+"/links", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("Failed JSON POST: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var created handler.CreateLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	resp.Body.Close()

	// TEST 2: Redeem twice, then hit the ceiling
	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		req, _ := http.NewRequest("GET", server.URL+"/links/"+created.ShortID, nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0")
		req.Header.Set("X-Forwarded-For", "203.0.113.50")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("redeem %d: %v", i, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("redeem %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}

	// TEST 3: Listing no longer has it
	resp, err = client.Get(server.URL + "/links/active")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list struct {
		Links []domain.LinkSummary `json:"links"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Links) != 0 {
		t.Errorf("Expected no active links, got %d", len(list.Links))
	}

	// TEST 4: Archive saw the link and both accesses
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.archiver.Close(ctx); err != nil {
		t.Fatalf("drain archiver: %v", err)
	}
	links, accesses, err := a.archive.Dump(ctx)
	if err != nil {
		t.Fatalf("dump archive: %v", err)
	}
	if len(links) != 1 || links[0].ShortID != created.ShortID {
		t.Errorf("archived links: %+v", links)
	}
	if len(accesses) != 2 {
		t.Fatalf("Expected 2 archived accesses, got %d", len(accesses))
	}
	if accesses[0].Entry.CallerAddress != "203.0.113.50" {
		t.Errorf("caller address %q, want forwarded address", accesses[0].Entry.CallerAddress)
	}

	if err := a.close(ctx); err != nil {
		t.Errorf("close app: %v", err)
	}
}

func TestAgentSync(t *testing.T) {
	a, err := newApp(testConfig("", ""), logging.Discard())
	if err != nil {
		t.Fatalf("Failed to init app: %v", err)
	}
	defer a.close(context.Background())

	server := httptest.NewServer(a.handler)
	defer server.Close()

	first, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/agents/ws"), nil)
	if err != nil {
		t.Fatalf("dial first agent: %v", err)
	}
	defer first.Close()

	var initial domain.Identity
	if err := json.Unmarshal(readUntil(t, first, domain.MessageIdentity).Data, &initial); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if initial.ID != a.hub.CurrentIdentity().ID {
		t.Errorf("first agent got identity %s, hub has %s", initial.ID, a.hub.CurrentIdentity().ID)
	}

	second, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/agents/ws"), nil)
	if err != nil {
		t.Fatalf("dial second agent: %v", err)
	}
	defer second.Close()
	readUntil(t, second, domain.MessageIdentity)

	// First agent sees the roster grow to two.
	for {
		var roster []domain.ConnectedAgent
		json.Unmarshal(readUntil(t, first, domain.MessageRoster).Data, &roster)
		if len(roster) == 2 {
			break
		}
	}

	// Actions reach everyone but the sender.
	action := map[string]any{
		"type": "action",
		"data": map[string]any{"id": "act-1", "type": "navigate", "payload": map[string]string{"url": "https://example.com"}},
	}
	if err := first.WriteJSON(action); err != nil {
		t.Fatalf("send action: %v", err)
	}
	var relayed domain.RelayedAction
	if err := json.Unmarshal(readUntil(t, second, domain.MessageAction).Data, &relayed); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if relayed.Type != "navigate" || relayed.From == "" {
		t.Errorf("relayed action: %+v", relayed)
	}
	var entry domain.LogEntry
	json.Unmarshal(readUntil(t, second, domain.MessageLog).Data, &entry)
	if entry.Type != domain.LogTypeSync || entry.AgentID != relayed.From {
		t.Errorf("sync log entry: %+v", entry)
	}

	// Fingerprint reports go to every agent, the sender included.
	report := map[string]any{"type": "fingerprint-test", "data": map[string]any{"site": "browserleaks", "passed": true}}
	if err := first.WriteJSON(report); err != nil {
		t.Fatalf("send fingerprint test: %v", err)
	}
	for _, conn := range []*websocket.Conn{first, second} {
		var results domain.TestResults
		json.Unmarshal(readUntil(t, conn, domain.MessageTestResults).Data, &results)
		if results.AgentID != relayed.From || !strings.Contains(string(results.Results), "browserleaks") {
			t.Errorf("test results: %+v", results)
		}
	}

	// Status reports show up in the roster.
	if err := second.WriteJSON(map[string]any{"type": "status", "data": map[string]string{"status": "ready"}}); err != nil {
		t.Fatalf("send status: %v", err)
	}
	for {
		var roster []domain.ConnectedAgent
		json.Unmarshal(readUntil(t, first, domain.MessageRoster).Data, &roster)
		ready := false
		for _, ag := range roster {
			if ag.Status == domain.AgentReady {
				ready = true
			}
		}
		if ready {
			break
		}
	}

	// Regenerating pushes the new identity to both agents.
	resp, err := server.Client().Post(server.URL+"/api/identity/generate", "application/json", nil)
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	var fresh domain.Identity
	json.NewDecoder(resp.Body).Decode(&fresh)
	resp.Body.Close()

	for _, conn := range []*websocket.Conn{first, second} {
		var got domain.Identity
		json.Unmarshal(readUntil(t, conn, domain.MessageIdentity).Data, &got)
		if got.ID != fresh.ID {
			t.Errorf("agent got identity %s, want %s", got.ID, fresh.ID)
		}
	}

	// A closed socket leaves the roster.
	second.Close()
	for {
		var roster []domain.ConnectedAgent
		json.Unmarshal(readUntil(t, first, domain.MessageRoster).Data, &roster)
		if len(roster) == 1 {
			break
		}
	}
}

func TestAgentTokenRequired(t *testing.T) {
	const secret = "e2e-secret"
	a, err := newApp(testConfig("", secret), logging.Discard())
	if err != nil {
		t.Fatalf("Failed to init app: %v", err)
	}
	defer a.close(context.Background())

	server := httptest.NewServer(a.handler)
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "/agents/ws"), nil)
	if err == nil {
		t.Fatal("expected the handshake to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	token, _, err := handler.NewAgentTokens(secret).Issue("agent-x", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/agents/ws?token="+token), nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, domain.MessageIdentity)

	roster := a.hub.Roster()
	if len(roster) != 1 || roster[0].ID != "agent-x" {
		t.Errorf("roster: %+v", roster)
	}

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(server, "/agents/ws?token="+token), nil)
	if err == nil {
		t.Fatal("expected duplicate agent to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %v", resp)
	}
}
