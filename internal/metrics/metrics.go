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

// Package metrics exposes the remediator's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remediator_analysis_cycles_total",
		Help: "Number of completed analysis cycles.",
	})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remediator_actions_total",
		Help: "Actions by terminal status.",
	}, []string{"status"})

	healthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "remediator_cluster_health_score",
		Help: "Overall cluster health score from the most recent cycle.",
	})

	issuesDetected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "remediator_issues_detected",
		Help: "Issues detected in the most recent cycle, by severity.",
	}, []string{"severity"})
)

// RecordCycle publishes the outcome of one analysis cycle.
func RecordCycle(overall float64, severityCounts map[string]int, results []interfaces.ExecutionResult) {
	cyclesTotal.Inc()
	healthScore.Set(overall)

	issuesDetected.Reset()
	for severity, count := range severityCounts {
		issuesDetected.WithLabelValues(severity).Set(float64(count))
	}
	for _, result := range results {
		actionsTotal.WithLabelValues(string(result.Status)).Inc()
	}
}

// Serve exposes /metrics on addr until the server fails. Intended to run
// in a goroutine beside the monitor loop.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
