package testing

import (
	"context"
	"sync"
	"time"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/probe"
)

// MockRelationalProbe is a configurable in-memory probe for testing
type MockRelationalProbe struct {
	mu sync.Mutex

	States       map[failover.Region]probe.RecoveryState
	Lag          map[failover.Region]float64
	Addrs        map[failover.Region]string
	ReachableErr map[failover.Region]*failover.Error

	PromoteErr  *failover.Error
	ValidateErr *failover.Error

	PromoteDelay  time.Duration
	ValidateDelay time.Duration

	PromoteCalls  int
	ValidateCalls int
}

// NewMockRelationalProbe creates a probe with all regions healthy standbys
func NewMockRelationalProbe(regions ...failover.Region) *MockRelationalProbe {
	m := &MockRelationalProbe{
		States:       make(map[failover.Region]probe.RecoveryState),
		Lag:          make(map[failover.Region]float64),
		Addrs:        make(map[failover.Region]string),
		ReachableErr: make(map[failover.Region]*failover.Error),
	}
	for _, region := range regions {
		m.States[region] = probe.StateStandby
		m.Lag[region] = 0.1
		m.Addrs[region] = string(region) + "-db:5432"
	}
	return m
}

func (m *MockRelationalProbe) CheckReachable(ctx context.Context, region failover.Region) *failover.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.ReachableErr[region]; ok && err != nil {
		return err
	}
	return nil
}

func (m *MockRelationalProbe) RecoveryState(ctx context.Context, region failover.Region) (probe.RecoveryState, *failover.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.States[region]
	if !ok {
		return probe.StateUnknown, failover.NewError(failover.KindUnknownRegion, "no endpoint for region %s", region)
	}
	return state, nil
}

func (m *MockRelationalProbe) ReplicationLag(ctx context.Context, region failover.Region) (float64, *failover.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Lag[region], nil
}

// Promote marks the region primary after the configured delay, unless
// PromoteErr is set
func (m *MockRelationalProbe) Promote(ctx context.Context, region failover.Region) *failover.Error {
	m.mu.Lock()
	m.PromoteCalls++
	delay := m.PromoteDelay
	promoteErr := m.PromoteErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return failover.NewError(failover.KindPromotionFailed, "promotion interrupted: %v", ctx.Err())
		}
	}

	if promoteErr != nil {
		return promoteErr
	}

	m.mu.Lock()
	m.States[region] = probe.StatePrimary
	m.mu.Unlock()
	return nil
}

func (m *MockRelationalProbe) ValidateWrite(ctx context.Context, region failover.Region, token string) *failover.Error {
	m.mu.Lock()
	m.ValidateCalls++
	delay := m.ValidateDelay
	validateErr := m.ValidateErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return failover.NewError(failover.KindValidationFailed, "validation write interrupted: %v", ctx.Err())
		}
	}

	return validateErr
}

func (m *MockRelationalProbe) Addr(region failover.Region) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Addrs[region]
}

// SetState updates a region's recovery state
func (m *MockRelationalProbe) SetState(region failover.Region, state probe.RecoveryState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.States[region] = state
}

// SetReachableErr configures CheckReachable to fail for the region
func (m *MockRelationalProbe) SetReachableErr(region failover.Region, err *failover.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReachableErr[region] = err
}

// MockSentinelClient is a configurable in-memory sentinel quorum for testing
type MockSentinelClient struct {
	mu sync.Mutex

	Master     string
	NextMaster string

	FailoverErr  *failover.Error
	ReachableErr *failover.Error
	ValidateErr  *failover.Error

	FailoverCalls int
}

// NewMockSentinelClient creates a sentinel client advertising the given
// master, switching to next on failover
func NewMockSentinelClient(master, next string) *MockSentinelClient {
	return &MockSentinelClient{Master: master, NextMaster: next}
}

func (m *MockSentinelClient) CurrentMaster(ctx context.Context, service string) (string, *failover.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Master, nil
}

func (m *MockSentinelClient) RequestFailover(ctx context.Context, service string) (string, *failover.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailoverCalls++
	if m.FailoverErr != nil {
		return "", m.FailoverErr
	}
	m.Master = m.NextMaster
	return m.Master, nil
}

func (m *MockSentinelClient) CheckReachable(ctx context.Context) *failover.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReachableErr
}

func (m *MockSentinelClient) ValidateCache(ctx context.Context, masterAddr, token string) *failover.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ValidateErr
}
