package observability_test

import (
	"testing"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
)

func TestSnapshot_CountsDecisionsAndRates(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrRenderDecision("send")
	m.IncrRenderDecision("send")
	m.IncrRenderDecision("noop")
	m.IncrStatementRequest("ok")
	m.IncrStatementRequest("rate_limited")
	m.IncrCacheHit("accounts")
	m.IncrCacheMiss("accounts")
	m.RecordRateGateWait(30 * time.Second)
	m.IncrReport("sent")
	m.SetActiveSessions(3)

	snap := m.Snapshot()

	if snap.RenderDecisions["send"] != 2 || snap.RenderDecisions["noop"] != 1 {
		t.Errorf("unexpected render decisions: %v", snap.RenderDecisions)
	}
	if _, ok := snap.RenderDecisions["edit_text"]; ok {
		t.Error("zero counters should be omitted")
	}
	if snap.StatementErrorRate != 0.5 {
		t.Errorf("expected error rate 0.5, got %v", snap.StatementErrorRate)
	}
	if snap.CacheHitRate != 0.5 {
		t.Errorf("expected cache hit rate 0.5, got %v", snap.CacheHitRate)
	}
	if snap.RateGateWaits != 1 || snap.RateGateWaitSecs != 30 {
		t.Errorf("unexpected rate gate stats: %d %v", snap.RateGateWaits, snap.RateGateWaitSecs)
	}
	if snap.Reports["sent"] != 1 {
		t.Errorf("expected 1 sent report, got %d", snap.Reports["sent"])
	}
	if snap.ActiveSessions != 3 {
		t.Errorf("expected 3 sessions, got %d", snap.ActiveSessions)
	}
}

func TestNewMetrics_Twice(t *testing.T) {
	// private registries: must not panic on duplicate registration
	_ = observability.NewMetrics()
	_ = observability.NewMetrics()
}
