package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/llm-d/llm-d-cluster-remediator/internal/audit"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

type allowAllGate struct{}

func (allowAllGate) Validate(interfaces.ActionRecord) interfaces.SafetyDecision {
	return interfaces.SafetyDecision{Allowed: true}
}

type denyAllGate struct{ reason string }

func (g denyAllGate) Validate(interfaces.ActionRecord) interfaces.SafetyDecision {
	return interfaces.SafetyDecision{Allowed: false, Reason: g.reason}
}

type fakeRegistry struct {
	err     error
	message string
	calls   []interfaces.ActionRecord
}

func (f *fakeRegistry) Dispatch(_ context.Context, rec interfaces.ActionRecord) (string, error) {
	f.calls = append(f.calls, rec)
	if f.err != nil {
		return "", f.err
	}
	return f.message, nil
}

type memoryRecorder struct {
	entries []audit.Entry
}

func (m *memoryRecorder) Append(entry audit.Entry) { m.entries = append(m.entries, entry) }
func (m *memoryRecorder) CountSince(time.Time) int { return len(m.entries) }
func (m *memoryRecorder) CountDeletionsSince(time.Time) int {
	return 0
}
func (m *memoryRecorder) Size() int        { return len(m.entries) }
func (m *memoryRecorder) LoadFailed() bool { return false }

func restartRecord() interfaces.ActionRecord {
	return interfaces.ActionRecord{
		Action:     interfaces.ActionRestartPod,
		Namespace:  "prod",
		Parameters: map[string]string{interfaces.ParamPodName: "web-1"},
	}
}

func TestExecutePlanDryRun(t *testing.T) {
	registry := &fakeRegistry{message: "done"}
	recorder := &memoryRecorder{}
	exec := New(allowAllGate{}, registry, recorder, zap.NewNop(), true)

	results := exec.ExecutePlan(context.Background(), []interfaces.ActionRecord{restartRecord()})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Status != interfaces.StatusSimulated {
		t.Errorf("expected simulated, got %s", results[0].Status)
	}
	if len(registry.calls) != 0 {
		t.Errorf("dry run must not dispatch, got %d calls", len(registry.calls))
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Status != "simulated" {
		t.Errorf("expected one simulated audit entry, got %+v", recorder.entries)
	}
}

func TestExecutePlanSuccess(t *testing.T) {
	registry := &fakeRegistry{message: "restart triggered for prod/web-1"}
	recorder := &memoryRecorder{}
	exec := New(allowAllGate{}, registry, recorder, zap.NewNop(), false)

	results := exec.ExecutePlan(context.Background(), []interfaces.ActionRecord{restartRecord()})
	if results[0].Status != interfaces.StatusSuccess {
		t.Errorf("expected success, got %s", results[0].Status)
	}
	if results[0].Message != "restart triggered for prod/web-1" {
		t.Errorf("unexpected message: %q", results[0].Message)
	}
	if len(registry.calls) != 1 {
		t.Errorf("expected 1 dispatch, got %d", len(registry.calls))
	}
	if recorder.entries[0].Status != "success" {
		t.Errorf("expected success audit entry, got %+v", recorder.entries[0])
	}
}

func TestExecutePlanBlocked(t *testing.T) {
	registry := &fakeRegistry{}
	recorder := &memoryRecorder{}
	exec := New(denyAllGate{reason: "protected namespace"}, registry, recorder, zap.NewNop(), false)

	results := exec.ExecutePlan(context.Background(), []interfaces.ActionRecord{restartRecord()})
	if results[0].Status != interfaces.StatusBlocked {
		t.Errorf("expected blocked, got %s", results[0].Status)
	}
	if len(registry.calls) != 0 {
		t.Error("blocked actions must not dispatch")
	}
	if recorder.entries[0].Status != "blocked" {
		t.Errorf("expected blocked audit entry, got %+v", recorder.entries[0])
	}
}

func TestExecutePlanFailureContinues(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("pod not found")}
	recorder := &memoryRecorder{}
	exec := New(allowAllGate{}, registry, recorder, zap.NewNop(), false)

	plan := []interfaces.ActionRecord{restartRecord(), restartRecord()}
	results := exec.ExecutePlan(context.Background(), plan)
	if len(results) != 2 {
		t.Fatalf("expected the plan to continue past a failure, got %d results", len(results))
	}
	for _, result := range results {
		if result.Status != interfaces.StatusFailed {
			t.Errorf("expected failed, got %s", result.Status)
		}
	}
	if len(recorder.entries) != 2 {
		t.Errorf("expected 2 audit entries, got %d", len(recorder.entries))
	}
}

func TestHistoryAccumulates(t *testing.T) {
	exec := New(allowAllGate{}, &fakeRegistry{message: "ok"}, &memoryRecorder{}, zap.NewNop(), true)

	exec.ExecutePlan(context.Background(), []interfaces.ActionRecord{restartRecord()})
	exec.ExecutePlan(context.Background(), []interfaces.ActionRecord{restartRecord()})
	if got := len(exec.History()); got != 2 {
		t.Errorf("expected 2 history entries, got %d", got)
	}

	exec.ClearHistory()
	if got := len(exec.History()); got != 0 {
		t.Errorf("expected empty history after clear, got %d", got)
	}
}

func TestDispatchTimeout(t *testing.T) {
	exec := New(allowAllGate{}, slowRegistry{}, &memoryRecorder{}, zap.NewNop(), false,
		WithDispatchTimeout(10*time.Millisecond))

	results := exec.ExecutePlan(context.Background(), []interfaces.ActionRecord{restartRecord()})
	if results[0].Status != interfaces.StatusFailed {
		t.Errorf("expected timeout to fail the action, got %s", results[0].Status)
	}
}

type slowRegistry struct{}

func (slowRegistry) Dispatch(ctx context.Context, _ interfaces.ActionRecord) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
