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

package safety

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llm-d/llm-d-cluster-remediator/internal/audit"
	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

// Gate validates proposed actions against the configured policy. Validate
// is read-only: it never records the action it inspects. The executor
// appends every terminal outcome to the audit log, which is where the
// rolling-window counts the gate reads come from.
type Gate struct {
	policy   Policy
	recorder audit.Recorder
	logger   *zap.Logger
	clock    func() time.Time

	// protectedResources holds the policy entries lowercased once, so the
	// containment check stays case-insensitive for both sides.
	protectedResources []string
}

// NewGate builds a gate over the given policy and audit history.
func NewGate(policy Policy, recorder audit.Recorder, logger *zap.Logger) *Gate {
	protected := make([]string, 0, len(policy.ProtectedResources))
	for _, res := range policy.ProtectedResources {
		protected = append(protected, strings.ToLower(res))
	}
	return &Gate{
		policy:             policy,
		recorder:           recorder,
		logger:             logger,
		clock:              time.Now,
		protectedResources: protected,
	}
}

// Status reports the current rate-limit consumption and configured
// limits, mirroring Validate's view of the audit history.
type Status struct {
	ActionsLastHour     int      `json:"actions_last_hour"`
	ActionsLimit        int      `json:"actions_limit"`
	DeletionsLastHour   int      `json:"deletions_last_hour"`
	DeletionsLimit      int      `json:"deletions_limit"`
	ProtectedNamespaces []string `json:"protected_namespaces"`
	ProtectedResources  []string `json:"protected_resources"`
	TotalLoggedActions  int      `json:"total_logged_actions"`
}

// Validate runs the safety checks in a fixed order and returns the first
// failure. The checks are ordered so the most specific explanation wins:
// protected targets before rate limits, rate limits before size caps.
func (g *Gate) Validate(rec interfaces.ActionRecord) interfaces.SafetyDecision {
	if g.recorder.LoadFailed() && !g.policy.FailOpen {
		return deny("audit history unavailable, blocking all actions")
	}

	if decision := g.checkProtectedNamespace(rec); !decision.Allowed {
		return decision
	}
	if decision := g.checkProtectedResource(rec); !decision.Allowed {
		return decision
	}
	if decision := g.checkActionRate(); !decision.Allowed {
		return decision
	}
	if decision := g.checkDeletionRate(rec); !decision.Allowed {
		return decision
	}
	if decision := g.checkBulkSize(rec); !decision.Allowed {
		return decision
	}
	if decision := g.checkScaleTarget(rec); !decision.Allowed {
		return decision
	}

	return interfaces.SafetyDecision{Allowed: true, Reason: "action is safe to execute"}
}

// SafetyStatus returns the gate's current view for reporting surfaces.
func (g *Gate) SafetyStatus() Status {
	cutoff := g.clock().Add(-time.Hour)
	return Status{
		ActionsLastHour:     g.recorder.CountSince(cutoff),
		ActionsLimit:        g.policy.MaxActionsPerHour,
		DeletionsLastHour:   g.recorder.CountDeletionsSince(cutoff),
		DeletionsLimit:      g.policy.MaxDeletionsPerHour,
		ProtectedNamespaces: g.policy.ProtectedNamespaces,
		ProtectedResources:  g.policy.ProtectedResources,
		TotalLoggedActions:  g.recorder.Size(),
	}
}

func (g *Gate) checkProtectedNamespace(rec interfaces.ActionRecord) interfaces.SafetyDecision {
	for _, ns := range g.policy.ProtectedNamespaces {
		if rec.Namespace == ns {
			return deny(fmt.Sprintf("cannot modify protected namespace: %s", rec.Namespace))
		}
	}
	return allow()
}

func (g *Gate) checkProtectedResource(rec interfaces.ActionRecord) interfaces.SafetyDecision {
	name := strings.ToLower(rec.ResourceName())
	if name == "" {
		return allow()
	}
	for _, protected := range g.protectedResources {
		if strings.Contains(name, protected) {
			return deny(fmt.Sprintf("cannot modify protected resource: %s", rec.ResourceName()))
		}
	}
	return allow()
}

func (g *Gate) checkActionRate() interfaces.SafetyDecision {
	cutoff := g.clock().Add(-time.Hour)
	recent := g.recorder.CountSince(cutoff)
	if recent >= g.policy.MaxActionsPerHour {
		return deny(fmt.Sprintf("rate limit exceeded: %d/%d actions per hour", recent, g.policy.MaxActionsPerHour))
	}
	return allow()
}

func (g *Gate) checkDeletionRate(rec interfaces.ActionRecord) interfaces.SafetyDecision {
	if !rec.Action.IsDeletion() {
		return allow()
	}
	cutoff := g.clock().Add(-time.Hour)
	recent := g.recorder.CountDeletionsSince(cutoff)
	if recent >= g.policy.MaxDeletionsPerHour {
		return deny(fmt.Sprintf("deletion limit exceeded: %d/%d deletions per hour", recent, g.policy.MaxDeletionsPerHour))
	}
	return allow()
}

func (g *Gate) checkBulkSize(rec interfaces.ActionRecord) interfaces.SafetyDecision {
	if !rec.Action.IsBulk() {
		return allow()
	}
	targets := rec.TargetList()
	if len(targets) > g.policy.MaxBulkTargets {
		return deny(fmt.Sprintf("bulk operation too large: %d resources (max %d)", len(targets), g.policy.MaxBulkTargets))
	}
	return allow()
}

func (g *Gate) checkScaleTarget(rec interfaces.ActionRecord) interfaces.SafetyDecision {
	if !rec.Action.IsScaling() {
		return allow()
	}
	if replicas := intParam(rec.Parameters, interfaces.ParamReplicas); replicas > g.policy.MaxReplicas {
		return deny(fmt.Sprintf("scale target too high: %d replicas (max %d)", replicas, g.policy.MaxReplicas))
	}
	if pct := intParam(rec.Parameters, interfaces.ParamPercentage); pct > g.policy.MaxScalePercentage {
		return deny(fmt.Sprintf("scale percentage too high: %d%% (max %d%%)", pct, g.policy.MaxScalePercentage))
	}
	return allow()
}

func allow() interfaces.SafetyDecision {
	return interfaces.SafetyDecision{Allowed: true}
}

func deny(reason string) interfaces.SafetyDecision {
	return interfaces.SafetyDecision{Allowed: false, Reason: reason}
}

// intParam parses a numeric parameter, treating missing or malformed
// values as zero so the corresponding limit check passes.
func intParam(params map[string]string, key string) int {
	raw, ok := params[key]
	if !ok {
		return 0
	}
	value := 0
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &value); err != nil {
		return 0
	}
	return value
}
