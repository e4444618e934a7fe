package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/history"
	"github.com/ConnectBest/failover-orchestrator/internal/logging"
	"github.com/ConnectBest/failover-orchestrator/internal/metrics"
	"github.com/ConnectBest/failover-orchestrator/internal/probe"
	"github.com/ConnectBest/failover-orchestrator/internal/routing"
	"github.com/ConnectBest/failover-orchestrator/internal/sentinel"
)

// State is the coordinator's position in the failover sequence
type State string

const (
	StateIdle             State = "idle"
	StateProbing          State = "probing"
	StatePromotingRel     State = "promoting_rel"
	StateFailingOverCache State = "failing_over_cache"
	StateUpdatingRouting  State = "updating_routing"
	StateValidating       State = "validating"
	StateIdleSuccess      State = "idle_success"
	StateIdleFailed       State = "idle_failed"
)

// RegionEndpoints names one region's data-plane endpoints as published in
// routing records
type RegionEndpoints struct {
	Relational string
	Cache      string
}

// StepBudgets carries the per-step time budgets
type StepBudgets struct {
	HealthCheck       time.Duration
	PromoteRelational time.Duration
	FailoverCache     time.Duration
	UpdateRouting     time.Duration
	Validate          time.Duration
}

// DefaultStepBudgets returns the standard per-step budgets
func DefaultStepBudgets() StepBudgets {
	return StepBudgets{
		HealthCheck:       500 * time.Millisecond,
		PromoteRelational: 2 * time.Second,
		FailoverCache:     1 * time.Second,
		UpdateRouting:     200 * time.Millisecond,
		Validate:          1500 * time.Millisecond,
	}
}

// Options configures the coordinator
type Options struct {
	Regions         map[failover.Region]RegionEndpoints
	CacheService    string
	OverallBudget   time.Duration
	MaxLagTolerated time.Duration
	StepBudgets     StepBudgets
}

// Coordinator is the top-level failover state machine. It composes the
// relational probe, the sentinel client, the step executor and the routing
// registry, and permits at most one in-flight attempt.
type Coordinator struct {
	opts     Options
	probe    probe.Relational
	sentinel sentinel.Client
	registry *routing.Registry
	store    *history.Store
	executor *failover.Executor
	logger   *logging.Logger

	inFlight atomic.Bool
	state    atomic.Value
}

// NewCoordinator creates a coordinator over the given collaborators
func NewCoordinator(opts Options, p probe.Relational, s sentinel.Client, registry *routing.Registry, store *history.Store, logger *logging.Logger) *Coordinator {
	c := &Coordinator{
		opts:     opts,
		probe:    p,
		sentinel: s,
		registry: registry,
		store:    store,
		executor: failover.NewExecutor(),
		logger:   logger,
	}
	c.state.Store(StateIdle)
	return c
}

// State returns the coordinator's current state
func (c *Coordinator) State() State {
	return c.state.Load().(State)
}

// InFlight reports whether an attempt is currently running
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

func (c *Coordinator) setState(s State) {
	c.state.Store(s)
}

// Trigger performs a failover to the target region. It is synchronous: the
// returned record is sealed and already appended to history. Rejections
// (unknown_region, already_at_target, already_in_progress) return an error
// and no record.
func (c *Coordinator) Trigger(ctx context.Context, target failover.Region) (failover.FailoverRecord, *failover.Error) {
	endpoints, ok := c.opts.Regions[target]
	if !ok {
		return failover.FailoverRecord{}, failover.NewError(failover.KindUnknownRegion, "region %s is not configured", target)
	}

	current := c.registry.Read()
	if current.ActiveRegion == target {
		return failover.FailoverRecord{}, failover.NewError(failover.KindAlreadyAtTarget, "region %s is already active", target)
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		return failover.FailoverRecord{}, failover.NewError(failover.KindAlreadyInProgress, "another failover attempt is in flight")
	}
	defer c.inFlight.Store(false)

	source := current.ActiveRegion
	// Attempt logs carry the correlation id of the trigger request.
	attemptLogger := c.logger.WithContext(ctx)
	attemptLogger.Info("Failover triggered", map[string]interface{}{
		"source_region": string(source),
		"target_region": string(target),
	})

	triggeredAt := time.Now().UTC()
	var newCacheMaster string

	steps := []failover.Step{
		{
			Name:     failover.StepHealthCheck,
			Critical: true,
			Budget:   c.opts.StepBudgets.HealthCheck,
			Run: func(stepCtx context.Context) (*failover.StepDetail, *failover.Error) {
				c.setState(StateProbing)
				return c.healthCheck(stepCtx, target)
			},
		},
		{
			Name:     failover.StepPromoteRelational,
			Critical: true,
			Budget:   c.opts.StepBudgets.PromoteRelational,
			Run: func(stepCtx context.Context) (*failover.StepDetail, *failover.Error) {
				c.setState(StatePromotingRel)
				return c.promoteRelational(stepCtx, target)
			},
		},
		{
			Name:     failover.StepFailoverCache,
			Critical: true,
			Budget:   c.opts.StepBudgets.FailoverCache,
			Run: func(stepCtx context.Context) (*failover.StepDetail, *failover.Error) {
				c.setState(StateFailingOverCache)
				master, ferr := c.sentinel.RequestFailover(stepCtx, c.opts.CacheService)
				if ferr != nil {
					if ferr.Kind == failover.KindQuorumUnavailable {
						return nil, ferr
					}
					return nil, failover.NewError(failover.KindCacheFailoverFailed, "%s", ferr.Message)
				}
				newCacheMaster = master
				return &failover.StepDetail{NewMaster: master}, nil
			},
		},
		{
			Name:     failover.StepUpdateRouting,
			Critical: true,
			Budget:   c.opts.StepBudgets.UpdateRouting,
			Run: func(stepCtx context.Context) (*failover.StepDetail, *failover.Error) {
				c.setState(StateUpdatingRouting)
				cacheMaster := newCacheMaster
				if cacheMaster == "" {
					cacheMaster = endpoints.Cache
				}
				record, ferr := c.registry.Swap(target, endpoints.Relational, cacheMaster)
				if ferr != nil {
					return nil, ferr
				}
				version := record.Version
				return &failover.StepDetail{RoutingVersion: &version}, nil
			},
		},
		{
			Name:     failover.StepValidate,
			Critical: true,
			Budget:   c.opts.StepBudgets.Validate,
			Run: func(stepCtx context.Context) (*failover.StepDetail, *failover.Error) {
				c.setState(StateValidating)
				return c.validate(stepCtx, target, newCacheMaster)
			},
		},
	}

	result := c.executor.Run(ctx, c.opts.OverallBudget, steps)

	record := failover.FailoverRecord{
		ID:            uuid.New().String(),
		SourceRegion:  source,
		TargetRegion:  target,
		TriggeredAt:   triggeredAt,
		CompletedAt:   time.Now().UTC(),
		Success:       result.Err == nil,
		TotalDuration: result.TotalDuration.Seconds(),
		SLACompliant:  result.TotalDuration <= c.opts.OverallBudget,
		Steps:         result.Steps,
		Error:         result.Err,
	}

	if record.Success {
		c.setState(StateIdleSuccess)
	} else {
		c.setState(StateIdleFailed)
	}

	c.store.Append(record)
	metrics.RecordFailoverAttempt(record.Success, record.SLACompliant, result.TotalDuration)
	for _, step := range record.Steps {
		metrics.RecordStep(string(step.Name), string(step.Outcome), step.Duration)
	}
	metrics.SetRoutingVersion(float64(c.registry.Read().Version))

	attemptLogger.Info("Failover attempt sealed", map[string]interface{}{
		"record_id":      record.ID,
		"success":        record.Success,
		"sla_compliant":  record.SLACompliant,
		"total_duration": record.TotalDuration,
		"error":          errMessage(record.Error),
	})

	return record, nil
}

// healthCheck verifies the target relational node is a standby within lag
// tolerance and that the sentinel quorum is reachable. It performs no
// mutations.
func (c *Coordinator) healthCheck(ctx context.Context, target failover.Region) (*failover.StepDetail, *failover.Error) {
	if ferr := c.probe.CheckReachable(ctx, target); ferr != nil {
		return nil, ferr
	}

	state, ferr := c.probe.RecoveryState(ctx, target)
	if ferr != nil {
		return nil, ferr
	}
	if state != probe.StateStandby {
		return nil, failover.NewError(failover.KindWrongRole, "region %s expected standby, reports %s", target, state)
	}

	lag, ferr := c.probe.ReplicationLag(ctx, target)
	if ferr != nil {
		return nil, ferr
	}
	// Lag exactly at tolerance is accepted.
	if lag > c.opts.MaxLagTolerated.Seconds() {
		return nil, failover.NewError(failover.KindLagTooHigh, "region %s lag %.3fs exceeds tolerance %.3fs", target, lag, c.opts.MaxLagTolerated.Seconds())
	}

	if ferr := c.sentinel.CheckReachable(ctx); ferr != nil {
		return nil, ferr
	}

	return &failover.StepDetail{ObservedLag: &lag}, nil
}

// promoteRelational promotes the target standby and confirms the new role
// with a second recovery-state check. This is the durable commit point: once
// it succeeds, the attempt is never rolled back.
func (c *Coordinator) promoteRelational(ctx context.Context, target failover.Region) (*failover.StepDetail, *failover.Error) {
	if ferr := c.probe.Promote(ctx, target); ferr != nil {
		return nil, ferr
	}

	state, ferr := c.probe.RecoveryState(ctx, target)
	if ferr != nil {
		return nil, failover.NewError(failover.KindPromotionFailed, "post-promotion confirmation: %s", ferr.Message)
	}
	if state != probe.StatePrimary {
		return nil, failover.NewError(failover.KindPromotionFailed, "region %s still reports %s after promotion", target, state)
	}

	return &failover.StepDetail{NewPrimary: c.probe.Addr(target)}, nil
}

// validate performs the end-to-end write checks against the new primaries.
// Routing is not reverted on failure; the new region already holds the
// durable state.
func (c *Coordinator) validate(ctx context.Context, target failover.Region, cacheMaster string) (*failover.StepDetail, *failover.Error) {
	token := uuid.New().String()

	if ferr := c.probe.ValidateWrite(ctx, target, token); ferr != nil {
		return nil, ferr
	}

	if cacheMaster == "" {
		cacheMaster = c.opts.Regions[target].Cache
	}
	if ferr := c.sentinel.ValidateCache(ctx, cacheMaster, token); ferr != nil {
		return nil, ferr
	}

	return &failover.StepDetail{ValidationToken: token}, nil
}

// Health reports whether the orchestrator can reach the sentinel quorum and
// at least one relational endpoint
func (c *Coordinator) Health(ctx context.Context) *failover.Error {
	if ferr := c.sentinel.CheckReachable(ctx); ferr != nil {
		return ferr
	}

	var lastErr *failover.Error
	for region := range c.opts.Regions {
		if ferr := c.probe.CheckReachable(ctx, region); ferr == nil {
			return nil
		} else {
			lastErr = ferr
		}
	}
	if lastErr == nil {
		lastErr = failover.NewError(failover.KindUnreachable, "no relational endpoints configured")
	}
	return lastErr
}

// Degraded reports whether the last attempt failed after the relational
// commit point, leaving the data plane promoted but the attempt unsuccessful
func (c *Coordinator) Degraded() bool {
	last, ok := c.store.Last()
	if !ok || last.Success {
		return false
	}
	for _, step := range last.Steps {
		if step.Name == failover.StepPromoteRelational && step.Outcome == failover.OutcomeOK {
			return true
		}
	}
	return false
}

func errMessage(err *failover.Error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
