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

// Package cluster provides the point-in-time cluster snapshot used as input
// to one analysis cycle, plus the Kubernetes primitives the executor
// dispatches remediation actions to.
package cluster

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PhaseRunning is the pod phase considered healthy by the analyzer.
	PhaseRunning = "Running"

	// problematicRestartThreshold marks a pod problematic once its restart
	// count exceeds this value, even while running.
	problematicRestartThreshold = 5
)

// PodRecord is the snapshot view of a single pod.
type PodRecord struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Phase     string `json:"phase"`
	Ready     bool   `json:"ready"`
	Restarts  int    `json:"restarts"`
	Node      string `json:"node"`
}

// IsProblematic reports whether the pod needs attention: not running, not
// ready, or restarting frequently.
func (p PodRecord) IsProblematic() bool {
	return p.Phase != PhaseRunning || !p.Ready || p.Restarts > problematicRestartThreshold
}

// DeploymentRecord is the snapshot view of a single deployment.
type DeploymentRecord struct {
	Name              string `json:"name"`
	Namespace         string `json:"namespace"`
	DesiredReplicas   int32  `json:"desiredReplicas"`
	ReadyReplicas     int32  `json:"readyReplicas"`
	AvailableReplicas int32  `json:"availableReplicas"`
}

// ClusterSnapshot is an immutable point-in-time read of pod and deployment
// state. A snapshot feeds exactly one analysis cycle and is then discarded.
type ClusterSnapshot struct {
	// Timestamp is when the snapshot was captured.
	Timestamp time.Time `json:"timestamp"`

	// Pods are all pods visible to the agent, in API list order.
	Pods []PodRecord `json:"pods"`

	// Deployments are all deployments visible to the agent, in API list
	// order.
	Deployments []DeploymentRecord `json:"deployments"`
}

// ProblematicPods returns the pods needing attention, preserving snapshot
// order.
func (s *ClusterSnapshot) ProblematicPods() []PodRecord {
	var problematic []PodRecord
	for _, pod := range s.Pods {
		if pod.IsProblematic() {
			problematic = append(problematic, pod)
		}
	}
	return problematic
}

// Summary renders a one-line-per-resource text view of the snapshot, used
// as context for the optional explainer.
func (s *ClusterSnapshot) Summary() string {
	var b strings.Builder
	for _, pod := range s.Pods {
		fmt.Fprintf(&b, "pod %s/%s phase=%s ready=%t restarts=%d\n",
			pod.Namespace, pod.Name, pod.Phase, pod.Ready, pod.Restarts)
	}
	for _, dep := range s.Deployments {
		fmt.Fprintf(&b, "deployment %s/%s desired=%d ready=%d available=%d\n",
			dep.Namespace, dep.Name, dep.DesiredReplicas, dep.ReadyReplicas, dep.AvailableReplicas)
	}
	return b.String()
}
