package failover

import "time"

// Region identifies one of the configured regions
type Region string

// StepName is one of the five fixed failover steps
type StepName string

const (
	StepHealthCheck       StepName = "health_check"
	StepPromoteRelational StepName = "promote_relational"
	StepFailoverCache     StepName = "failover_cache"
	StepUpdateRouting     StepName = "update_routing"
	StepValidate          StepName = "validate"
)

// StepOutcome is the disposition of a single step
type StepOutcome string

const (
	OutcomeOK      StepOutcome = "ok"
	OutcomeFailed  StepOutcome = "failed"
	OutcomeSkipped StepOutcome = "skipped"
)

// StepDetail carries the structured result of a successful step. Fields are
// set only when the step produced them.
type StepDetail struct {
	ObservedLag     *float64 `json:"observed_lag_seconds,omitempty"`
	NewMaster       string   `json:"new_master,omitempty"`
	NewPrimary      string   `json:"new_primary,omitempty"`
	ValidationToken string   `json:"validation_token,omitempty"`
	RoutingVersion  *uint64  `json:"routing_version,omitempty"`
}

// StepRecord is the audit entry for one executed (or skipped) step
type StepRecord struct {
	Name      StepName    `json:"name"`
	StartedAt time.Time   `json:"started_at"`
	Duration  float64     `json:"duration_seconds"`
	Outcome   StepOutcome `json:"outcome"`
	Detail    *StepDetail `json:"detail,omitempty"`
	Error     *Error      `json:"error,omitempty"`
}

// FailoverRecord is the sealed audit artefact of one failover attempt.
// It is immutable once handed to the history store.
type FailoverRecord struct {
	ID            string       `json:"id"`
	SourceRegion  Region       `json:"source_region"`
	TargetRegion  Region       `json:"target_region"`
	TriggeredAt   time.Time    `json:"triggered_at"`
	CompletedAt   time.Time    `json:"completed_at"`
	Success       bool         `json:"success"`
	TotalDuration float64      `json:"total_duration_seconds"`
	SLACompliant  bool         `json:"sla_compliant"`
	Steps         []StepRecord `json:"steps"`
	Error         *Error       `json:"error,omitempty"`
}

// Summary is the condensed form of a FailoverRecord returned by /status
type Summary struct {
	ID            string    `json:"id"`
	SourceRegion  Region    `json:"source_region"`
	TargetRegion  Region    `json:"target_region"`
	TriggeredAt   time.Time `json:"triggered_at"`
	Success       bool      `json:"success"`
	TotalDuration float64   `json:"total_duration_seconds"`
	SLACompliant  bool      `json:"sla_compliant"`
	Error         *Error    `json:"error,omitempty"`
}

// Summarize returns the condensed form of the record
func (r *FailoverRecord) Summarize() Summary {
	return Summary{
		ID:            r.ID,
		SourceRegion:  r.SourceRegion,
		TargetRegion:  r.TargetRegion,
		TriggeredAt:   r.TriggeredAt,
		Success:       r.Success,
		TotalDuration: r.TotalDuration,
		SLACompliant:  r.SLACompliant,
		Error:         r.Error,
	}
}
