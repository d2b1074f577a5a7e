package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestSnapshotCountsEverything(t *testing.T) {
	m := New()

	m.LinkCreated()
	m.LinkCreated()
	m.Redeemed()
	m.RedemptionRejected()
	m.Swept(3)
	m.IdentityGenerated()
	m.FingerprintTested()
	m.MessageDropped()
	m.AgentConnected(1)
	m.AgentConnected(2)
	m.SetActiveAgents(1)
	m.SyncAction("navigate")
	m.SyncAction("navigate")
	m.Error("archive", "write")

	s := m.Snapshot()
	if s.LinksCreated != 2 || s.Redemptions != 1 || s.RedemptionsRejected != 1 || s.LinksSwept != 3 {
		t.Errorf("link counters: %+v", s)
	}
	if s.AgentConnections != 2 || s.ActiveAgents != 1 || s.MessagesDropped != 1 || s.IdentitiesGenerated != 1 || s.FingerprintTests != 1 {
		t.Errorf("agent counters: %+v", s)
	}
	if s.SyncActions["navigate"] != 2 || s.Errors["archive/write"] != 1 {
		t.Errorf("maps: %v %v", s.SyncActions, s.Errors)
	}

	// Snapshots are copies.
	s.SyncActions["navigate"] = 100
	if m.Snapshot().SyncActions["navigate"] != 2 {
		t.Error("snapshot map aliases the live counters")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Redeemed()
			m.SyncAction("click")
			_ = m.Snapshot()
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Redemptions; got != 50 {
		t.Errorf("Redemptions = %d, want 50", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.SyncAction("navigate")
	m.Error("archive", "overflow")
	m.AgentConnected(3)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/api/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{
		`phantom_sync_actions_total{action_type="navigate"} 1`,
		`phantom_errors_total{component="archive",error_type="overflow"} 1`,
		`phantom_websocket_connections_total{client_type="agent"} 1`,
		`phantom_active_clients 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition is missing %q", want)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.LinkCreated()

	if got := b.Snapshot().LinksCreated; got != 0 {
		t.Errorf("second registry saw %d links", got)
	}
}
