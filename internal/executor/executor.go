/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package executor runs remediation plans through the safety gate and
// dispatches allowed actions to the cluster. Execution over a plan is
// strictly sequential so the rolling-window rate counters stay correct
// without locks.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llm-d/llm-d-cluster-remediator/internal/audit"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

// DefaultDispatchTimeout bounds a single action dispatch. Expiry converts
// the action into a failed outcome rather than stalling the plan.
const DefaultDispatchTimeout = 30 * time.Second

// Registry dispatches one validated action against the cluster.
type Registry interface {
	Dispatch(ctx context.Context, rec interfaces.ActionRecord) (string, error)
}

// Executor applies plans. It holds the in-memory execution history for
// the lifetime of the process; the durable history lives in the audit log.
type Executor struct {
	gate            Gate
	registry        Registry
	log             audit.Recorder
	logger          *zap.Logger
	dryRun          bool
	dispatchTimeout time.Duration
	clock           func() time.Time

	mu      sync.Mutex
	history []interfaces.ExecutionResult
}

// Gate is the safety decision surface the executor consults per action.
type Gate interface {
	Validate(rec interfaces.ActionRecord) interfaces.SafetyDecision
}

// Option tweaks executor construction.
type Option func(*Executor)

// WithDispatchTimeout overrides the per-action dispatch timeout.
func WithDispatchTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.dispatchTimeout = d
		}
	}
}

// New builds an executor. With dryRun set, allowed actions resolve to
// simulated outcomes and the registry is never invoked.
func New(gate Gate, registry Registry, log audit.Recorder, logger *zap.Logger, dryRun bool, opts ...Option) *Executor {
	e := &Executor{
		gate:            gate,
		registry:        registry,
		log:             log,
		logger:          logger,
		dryRun:          dryRun,
		dispatchTimeout: DefaultDispatchTimeout,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutePlan runs each record through the gate and, when allowed,
// dispatches it. Dispatch errors become failed results and never abort
// the remaining plan. Every terminal outcome appends one audit entry.
func (e *Executor) ExecutePlan(ctx context.Context, records []interfaces.ActionRecord) []interfaces.ExecutionResult {
	results := make([]interfaces.ExecutionResult, 0, len(records))
	for _, rec := range records {
		result := e.executeOne(ctx, rec)
		results = append(results, result)

		e.mu.Lock()
		e.history = append(e.history, result)
		e.mu.Unlock()

		e.log.Append(audit.Entry{
			Timestamp:  result.Timestamp,
			Action:     string(result.Action),
			Parameters: result.Parameters,
			Status:     string(result.Status),
		})
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, rec interfaces.ActionRecord) interfaces.ExecutionResult {
	result := interfaces.ExecutionResult{
		Action:     rec.Action,
		Parameters: rec.Parameters,
		Timestamp:  e.clock(),
	}

	decision := e.gate.Validate(rec)
	if !decision.Allowed {
		result.Status = interfaces.StatusBlocked
		result.Message = "blocked by safety gate: " + decision.Reason
		e.logger.Warn("action blocked",
			zap.String("action", string(rec.Action)),
			zap.String("namespace", rec.Namespace),
			zap.String("reason", decision.Reason),
		)
		return result
	}

	if e.dryRun {
		result.Status = interfaces.StatusSimulated
		result.Message = fmt.Sprintf("would execute %s with params: %s", rec.Action, rec.ParameterString())
		e.logger.Info("action simulated",
			zap.String("action", string(rec.Action)),
			zap.String("namespace", rec.Namespace),
		)
		return result
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()

	message, err := e.registry.Dispatch(dispatchCtx, rec)
	if err != nil {
		result.Status = interfaces.StatusFailed
		result.Message = fmt.Sprintf("failed to execute %s: %v", rec.Action, err)
		e.logger.Error("action failed",
			zap.String("action", string(rec.Action)),
			zap.String("namespace", rec.Namespace),
			zap.Error(err),
		)
		return result
	}

	result.Status = interfaces.StatusSuccess
	result.Message = message
	e.logger.Info("action executed",
		zap.String("action", string(rec.Action)),
		zap.String("namespace", rec.Namespace),
		zap.String("result", message),
	)
	return result
}

// History returns a copy of all results this executor produced.
func (e *Executor) History() []interfaces.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]interfaces.ExecutionResult, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory resets the in-memory history. The audit log is untouched.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}
