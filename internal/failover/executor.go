package failover

import (
	"context"
	"time"
)

// Step is a named, budgeted unit of work executed by the Executor.
// Critical steps abort the remainder of the sequence on failure.
type Step struct {
	Name     StepName
	Critical bool
	Budget   time.Duration
	Run      func(ctx context.Context) (*StepDetail, *Error)
}

// ExecutionResult reports the per-step records and the overall disposition
// of one run.
type ExecutionResult struct {
	Steps         []StepRecord
	TotalDuration time.Duration
	Err           *Error
}

// Executor runs an ordered sequence of steps under a global deadline.
// It is stateless; a single instance may be shared.
type Executor struct{}

// NewExecutor creates a step executor
func NewExecutor() *Executor {
	return &Executor{}
}

// Run executes the steps in order. Each step body receives a context whose
// deadline is min(step budget, overall deadline). Once a critical step fails
// or the overall deadline passes, the remaining steps are recorded as skipped.
func (e *Executor) Run(ctx context.Context, overall time.Duration, steps []Step) ExecutionResult {
	start := time.Now()
	deadline := start.Add(overall)

	result := ExecutionResult{Steps: make([]StepRecord, 0, len(steps))}

	for _, step := range steps {
		now := time.Now()

		if result.Err != nil {
			result.Steps = append(result.Steps, StepRecord{
				Name:      step.Name,
				StartedAt: now,
				Outcome:   OutcomeSkipped,
			})
			continue
		}

		if !now.Before(deadline) {
			stepErr := NewError(KindDeadlineExceeded, "overall budget exhausted before step %s", step.Name)
			result.Steps = append(result.Steps, StepRecord{
				Name:      step.Name,
				StartedAt: now,
				Outcome:   OutcomeSkipped,
				Error:     stepErr,
			})
			if result.Err == nil {
				result.Err = stepErr
			}
			continue
		}

		budget := step.Budget
		if remaining := deadline.Sub(now); remaining < budget {
			budget = remaining
		}

		stepCtx, cancel := context.WithTimeout(ctx, budget)
		detail, stepErr := step.Run(stepCtx)
		cancel()

		duration := time.Since(now)

		// A step cut off by the overall deadline reports deadline_exceeded
		// regardless of how the body classified the interruption.
		if stepErr != nil && !time.Now().Before(deadline) {
			stepErr = NewError(KindDeadlineExceeded, "step %s interrupted by overall deadline: %s", step.Name, stepErr.Message)
		}

		record := StepRecord{
			Name:      step.Name,
			StartedAt: now,
			Duration:  duration.Seconds(),
			Detail:    detail,
		}
		if stepErr != nil {
			record.Outcome = OutcomeFailed
			record.Error = stepErr
			if step.Critical {
				result.Err = stepErr
			}
		} else {
			record.Outcome = OutcomeOK
		}
		result.Steps = append(result.Steps, record)
	}

	result.TotalDuration = time.Since(start)
	return result
}
