package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/history"
	"github.com/ConnectBest/failover-orchestrator/internal/logging"
	"github.com/ConnectBest/failover-orchestrator/internal/probe"
	"github.com/ConnectBest/failover-orchestrator/internal/routing"
	testutil "github.com/ConnectBest/failover-orchestrator/internal/testing"
)

func testOptions() Options {
	return Options{
		Regions: map[failover.Region]RegionEndpoints{
			"region1": {Relational: "pg-a:5432", Cache: "redis-a:6379"},
			"region2": {Relational: "pg-b:5432", Cache: "redis-b:6379"},
		},
		CacheService:    "mymaster",
		OverallBudget:   5 * time.Second,
		MaxLagTolerated: 1 * time.Second,
		StepBudgets:     DefaultStepBudgets(),
	}
}

type fixture struct {
	coordinator *Coordinator
	probe       *testutil.MockRelationalProbe
	sentinel    *testutil.MockSentinelClient
	registry    *routing.Registry
	store       *history.Store
}

func newFixture(opts Options) *fixture {
	relProbe := testutil.NewMockRelationalProbe("region1", "region2")
	relProbe.SetState("region1", probe.StatePrimary)

	sentinelClient := testutil.NewMockSentinelClient("redis-a:6379", "redis-b:6379")
	registry := routing.NewRegistry("region1", "pg-a:5432", "redis-a:6379")
	store := history.NewStore(100)
	logger := logging.NewLogger("error", "text", "stderr")

	return &fixture{
		coordinator: NewCoordinator(opts, relProbe, sentinelClient, registry, store, logger),
		probe:       relProbe,
		sentinel:    sentinelClient,
		registry:    registry,
		store:       store,
	}
}

func stepByName(t *testing.T, record failover.FailoverRecord, name failover.StepName) failover.StepRecord {
	t.Helper()
	for _, step := range record.Steps {
		if step.Name == name {
			return step
		}
	}
	t.Fatalf("Step %s not found in record", name)
	return failover.StepRecord{}
}

func TestCoordinator_HappyPath(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.Lag["region2"] = 0.2

	record, ferr := f.coordinator.Trigger(context.Background(), "region2")
	if ferr != nil {
		t.Fatalf("Trigger failed: %v", ferr)
	}

	if !record.Success {
		t.Fatalf("Expected success, got error %v", record.Error)
	}
	if !record.SLACompliant {
		t.Error("Expected SLA compliance")
	}
	if len(record.Steps) != 5 {
		t.Fatalf("Expected 5 steps, got %d", len(record.Steps))
	}

	wantOrder := []failover.StepName{
		failover.StepHealthCheck,
		failover.StepPromoteRelational,
		failover.StepFailoverCache,
		failover.StepUpdateRouting,
		failover.StepValidate,
	}
	for i, step := range record.Steps {
		if step.Name != wantOrder[i] {
			t.Errorf("Step %d: expected %s, got %s", i, wantOrder[i], step.Name)
		}
		if step.Outcome != failover.OutcomeOK {
			t.Errorf("Step %s: expected ok, got %s (%v)", step.Name, step.Outcome, step.Error)
		}
	}

	routingRecord := f.registry.Read()
	if routingRecord.ActiveRegion != "region2" {
		t.Errorf("Expected active region region2, got %s", routingRecord.ActiveRegion)
	}
	if routingRecord.Version != 2 {
		t.Errorf("Expected version incremented to 2, got %d", routingRecord.Version)
	}
	if routingRecord.CacheMaster != "redis-b:6379" {
		t.Errorf("Expected new cache master, got %s", routingRecord.CacheMaster)
	}

	if f.store.Len() != 1 {
		t.Errorf("Expected record appended to history, got %d", f.store.Len())
	}
	if f.coordinator.State() != StateIdleSuccess {
		t.Errorf("Expected idle_success, got %s", f.coordinator.State())
	}

	health := stepByName(t, record, failover.StepHealthCheck)
	if health.Detail == nil || health.Detail.ObservedLag == nil || *health.Detail.ObservedLag != 0.2 {
		t.Error("Expected observed lag recorded in health check detail")
	}
	validate := stepByName(t, record, failover.StepValidate)
	if validate.Detail == nil || validate.Detail.ValidationToken == "" {
		t.Error("Expected validation token recorded")
	}
}

func TestCoordinator_LagTooHighRejectsBeforeMutation(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.Lag["region2"] = 5.0

	record, ferr := f.coordinator.Trigger(context.Background(), "region2")
	if ferr != nil {
		t.Fatalf("Trigger failed: %v", ferr)
	}

	if record.Success {
		t.Fatal("Expected failure")
	}
	if record.Error == nil || record.Error.Kind != failover.KindLagTooHigh {
		t.Fatalf("Expected lag_too_high, got %v", record.Error)
	}

	health := stepByName(t, record, failover.StepHealthCheck)
	if health.Outcome != failover.OutcomeFailed {
		t.Errorf("Expected health check failed, got %s", health.Outcome)
	}
	for _, name := range []failover.StepName{failover.StepPromoteRelational, failover.StepFailoverCache, failover.StepUpdateRouting, failover.StepValidate} {
		if step := stepByName(t, record, name); step.Outcome != failover.OutcomeSkipped {
			t.Errorf("Expected %s skipped, got %s", name, step.Outcome)
		}
	}

	if f.probe.PromoteCalls != 0 {
		t.Error("Expected no promotion attempt")
	}
	routingRecord := f.registry.Read()
	if routingRecord.ActiveRegion != "region1" || routingRecord.Version != 1 {
		t.Errorf("Expected routing unchanged, got %s v%d", routingRecord.ActiveRegion, routingRecord.Version)
	}
}

func TestCoordinator_LagExactlyAtToleranceAccepted(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.Lag["region2"] = 1.0

	record, ferr := f.coordinator.Trigger(context.Background(), "region2")
	if ferr != nil {
		t.Fatalf("Trigger failed: %v", ferr)
	}
	if !record.Success {
		t.Fatalf("Expected lag at tolerance to be accepted, got %v", record.Error)
	}
}

func TestCoordinator_WrongRoleRejected(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.SetState("region2", probe.StatePrimary)

	record, _ := f.coordinator.Trigger(context.Background(), "region2")
	if record.Success {
		t.Fatal("Expected failure")
	}
	if record.Error.Kind != failover.KindWrongRole {
		t.Errorf("Expected wrong_role, got %s", record.Error.Kind)
	}
}

func TestCoordinator_PromotionFailsCleanly(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.PromoteErr = failover.NewError(failover.KindPromotionFailed, "command refused")

	record, ferr := f.coordinator.Trigger(context.Background(), "region2")
	if ferr != nil {
		t.Fatalf("Trigger failed: %v", ferr)
	}

	if record.Success {
		t.Fatal("Expected failure")
	}
	if record.Error.Kind != failover.KindPromotionFailed {
		t.Errorf("Expected promotion_failed, got %s", record.Error.Kind)
	}
	if stepByName(t, record, failover.StepHealthCheck).Outcome != failover.OutcomeOK {
		t.Error("Expected health check ok")
	}
	if stepByName(t, record, failover.StepPromoteRelational).Outcome != failover.OutcomeFailed {
		t.Error("Expected promotion failed")
	}
	for _, name := range []failover.StepName{failover.StepFailoverCache, failover.StepUpdateRouting, failover.StepValidate} {
		if step := stepByName(t, record, name); step.Outcome != failover.OutcomeSkipped {
			t.Errorf("Expected %s skipped, got %s", name, step.Outcome)
		}
	}
	if f.registry.Read().Version != 1 {
		t.Error("Expected routing unchanged")
	}
	if f.sentinel.FailoverCalls != 0 {
		t.Error("Expected no cache failover attempt")
	}
}

func TestCoordinator_CacheFailoverFailsAfterPromotion(t *testing.T) {
	f := newFixture(testOptions())
	f.sentinel.FailoverErr = failover.NewError(failover.KindCacheFailoverFailed, "master did not change")

	record, ferr := f.coordinator.Trigger(context.Background(), "region2")
	if ferr != nil {
		t.Fatalf("Trigger failed: %v", ferr)
	}

	if record.Success {
		t.Fatal("Expected failure")
	}
	if record.Error.Kind != failover.KindCacheFailoverFailed {
		t.Errorf("Expected cache_failover_failed, got %s", record.Error.Kind)
	}
	if stepByName(t, record, failover.StepPromoteRelational).Outcome != failover.OutcomeOK {
		t.Error("Expected promotion ok")
	}
	if stepByName(t, record, failover.StepUpdateRouting).Outcome != failover.OutcomeSkipped {
		t.Error("Expected routing update skipped")
	}
	if stepByName(t, record, failover.StepValidate).Outcome != failover.OutcomeSkipped {
		t.Error("Expected validate skipped")
	}

	// The relational node is promoted but routing still names region1:
	// a degraded state, never silently rolled back.
	if state, _ := f.probe.RecoveryState(context.Background(), "region2"); state != probe.StatePrimary {
		t.Error("Expected region2 to remain promoted")
	}
	if f.registry.Read().ActiveRegion != "region1" {
		t.Error("Expected routing unchanged")
	}
	if !f.coordinator.Degraded() {
		t.Error("Expected degraded state surfaced")
	}
}

func TestCoordinator_DeadlinePressureDuringValidate(t *testing.T) {
	opts := testOptions()
	opts.OverallBudget = 250 * time.Millisecond
	f := newFixture(opts)
	f.probe.ValidateDelay = 2 * time.Second

	record, ferr := f.coordinator.Trigger(context.Background(), "region2")
	if ferr != nil {
		t.Fatalf("Trigger failed: %v", ferr)
	}

	if record.Success {
		t.Fatal("Expected failure")
	}
	if record.Error.Kind != failover.KindDeadlineExceeded {
		t.Errorf("Expected deadline_exceeded, got %s", record.Error.Kind)
	}
	validate := stepByName(t, record, failover.StepValidate)
	if validate.Outcome != failover.OutcomeFailed {
		t.Errorf("Expected validate failed, got %s", validate.Outcome)
	}
	if record.SLACompliant {
		t.Error("Expected SLA violation")
	}
	// Total duration stays within a small margin of the budget.
	if record.TotalDuration > 0.25+0.05 {
		t.Errorf("Expected total duration near budget, got %v", record.TotalDuration)
	}
}

func TestCoordinator_ConcurrentTriggersRejected(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.PromoteDelay = 300 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(1)

	var firstRecord failover.FailoverRecord
	var firstErr *failover.Error
	go func() {
		defer wg.Done()
		firstRecord, firstErr = f.coordinator.Trigger(context.Background(), "region2")
	}()

	time.Sleep(100 * time.Millisecond)
	if !f.coordinator.InFlight() {
		t.Fatal("Expected attempt in flight")
	}

	_, secondErr := f.coordinator.Trigger(context.Background(), "region2")
	if secondErr == nil {
		t.Fatal("Expected second trigger rejected")
	}
	if secondErr.Kind != failover.KindAlreadyInProgress {
		t.Errorf("Expected already_in_progress, got %s", secondErr.Kind)
	}

	wg.Wait()
	if firstErr != nil {
		t.Fatalf("First trigger failed: %v", firstErr)
	}
	if !firstRecord.Success {
		t.Errorf("Expected first trigger to succeed, got %v", firstRecord.Error)
	}

	// The rejected trigger produced no record.
	if f.store.Len() != 1 {
		t.Errorf("Expected exactly one history record, got %d", f.store.Len())
	}
}

func TestCoordinator_AlreadyAtTarget(t *testing.T) {
	f := newFixture(testOptions())

	_, ferr := f.coordinator.Trigger(context.Background(), "region1")
	if ferr == nil {
		t.Fatal("Expected rejection")
	}
	if ferr.Kind != failover.KindAlreadyAtTarget {
		t.Errorf("Expected already_at_target, got %s", ferr.Kind)
	}
	if f.store.Len() != 0 {
		t.Error("Expected no history record for a no-op trigger")
	}
	if f.registry.Read().Version != 1 {
		t.Error("Expected routing unchanged")
	}
}

func TestCoordinator_UnknownRegion(t *testing.T) {
	f := newFixture(testOptions())

	_, ferr := f.coordinator.Trigger(context.Background(), "region9")
	if ferr == nil {
		t.Fatal("Expected rejection")
	}
	if ferr.Kind != failover.KindUnknownRegion {
		t.Errorf("Expected unknown_region, got %s", ferr.Kind)
	}
}

func TestCoordinator_TargetUnreachable(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.SetReachableErr("region2", failover.NewError(failover.KindUnreachable, "connection refused"))

	record, _ := f.coordinator.Trigger(context.Background(), "region2")
	if record.Success {
		t.Fatal("Expected failure")
	}
	if record.Error.Kind != failover.KindUnreachable {
		t.Errorf("Expected unreachable, got %s", record.Error.Kind)
	}
}

func TestCoordinator_SentinelUnreachableFailsHealthCheck(t *testing.T) {
	f := newFixture(testOptions())
	f.sentinel.ReachableErr = failover.NewError(failover.KindQuorumUnavailable, "no sentinel reachable")

	record, _ := f.coordinator.Trigger(context.Background(), "region2")
	if record.Success {
		t.Fatal("Expected failure")
	}
	if record.Error.Kind != failover.KindQuorumUnavailable {
		t.Errorf("Expected quorum_unavailable, got %s", record.Error.Kind)
	}
	if f.probe.PromoteCalls != 0 {
		t.Error("Expected no promotion attempt")
	}
}

func TestCoordinator_ValidationFailureDoesNotRevertRouting(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.ValidateErr = failover.NewError(failover.KindValidationFailed, "write refused")

	record, _ := f.coordinator.Trigger(context.Background(), "region2")
	if record.Success {
		t.Fatal("Expected failure")
	}
	if record.Error.Kind != failover.KindValidationFailed {
		t.Errorf("Expected validation_failed, got %s", record.Error.Kind)
	}

	// Routing stays swapped: the new region holds the durable state.
	routingRecord := f.registry.Read()
	if routingRecord.ActiveRegion != "region2" {
		t.Errorf("Expected routing to remain on region2, got %s", routingRecord.ActiveRegion)
	}
	if routingRecord.Version != 2 {
		t.Errorf("Expected version 2, got %d", routingRecord.Version)
	}
	if !f.coordinator.Degraded() {
		t.Error("Expected degraded state surfaced")
	}
}

func TestCoordinator_VersionUnchangedAcrossFailedAttempts(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.Lag["region2"] = 9.0

	for i := 0; i < 3; i++ {
		f.coordinator.Trigger(context.Background(), "region2")
	}

	if version := f.registry.Read().Version; version != 1 {
		t.Errorf("Expected version unchanged at 1, got %d", version)
	}
	if f.store.Len() != 3 {
		t.Errorf("Expected 3 failed attempts recorded, got %d", f.store.Len())
	}
}

func TestCoordinator_HealthReportsDegradedWhenSentinelDown(t *testing.T) {
	f := newFixture(testOptions())
	f.sentinel.ReachableErr = failover.NewError(failover.KindQuorumUnavailable, "down")

	if ferr := f.coordinator.Health(context.Background()); ferr == nil {
		t.Error("Expected health failure when sentinel unreachable")
	}
}

func TestCoordinator_HealthOKWithOneRelationalEndpoint(t *testing.T) {
	f := newFixture(testOptions())
	f.probe.SetReachableErr("region1", failover.NewError(failover.KindUnreachable, "down"))

	if ferr := f.coordinator.Health(context.Background()); ferr != nil {
		t.Errorf("Expected health ok with one reachable endpoint, got %v", ferr)
	}
}
