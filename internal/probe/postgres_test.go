package probe

import (
	"context"
	"testing"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/logging"
)

func newTestProbe(t *testing.T) *PostgresProbe {
	t.Helper()

	targets := map[failover.Region]Target{
		"region1": {Addr: "pg-a:5432", DSN: "host=pg-a port=5432 user=u password=p dbname=d sslmode=disable"},
		"region2": {Addr: "pg-b:5432", DSN: "host=pg-b port=5432 user=u password=p dbname=d sslmode=disable"},
	}

	p, err := NewPostgresProbe(targets, logging.NewLogger("error", "text", "stderr"))
	if err != nil {
		t.Fatalf("NewPostgresProbe failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPostgresProbe_Addr(t *testing.T) {
	p := newTestProbe(t)

	if addr := p.Addr("region1"); addr != "pg-a:5432" {
		t.Errorf("Expected pg-a:5432, got %s", addr)
	}
	if addr := p.Addr("region9"); addr != "" {
		t.Errorf("Expected empty addr for unconfigured region, got %s", addr)
	}
}

func TestPostgresProbe_UnknownRegion(t *testing.T) {
	p := newTestProbe(t)
	ctx := context.Background()

	if ferr := p.CheckReachable(ctx, "region9"); ferr == nil || ferr.Kind != failover.KindUnknownRegion {
		t.Errorf("Expected unknown_region, got %v", ferr)
	}

	state, ferr := p.RecoveryState(ctx, "region9")
	if ferr == nil || ferr.Kind != failover.KindUnknownRegion {
		t.Errorf("Expected unknown_region, got %v", ferr)
	}
	if state != StateUnknown {
		t.Errorf("Expected unknown state, got %s", state)
	}

	if _, ferr := p.ReplicationLag(ctx, "region9"); ferr == nil || ferr.Kind != failover.KindUnknownRegion {
		t.Errorf("Expected unknown_region, got %v", ferr)
	}
}

func TestClassifyConnErr(t *testing.T) {
	ferr := classifyConnErr("region1", context.DeadlineExceeded)
	if ferr.Kind != failover.KindUnreachable {
		t.Errorf("Expected unreachable for deadline, got %s", ferr.Kind)
	}
}
