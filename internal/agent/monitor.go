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

package agent

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Monitor runs cycles back to back separated by the interval until the
// context is cancelled or maxIterations cycles complete. A maxIterations
// of zero runs until cancellation. The last cycle result is returned for
// callers that want a final summary.
func (a *Agent) Monitor(ctx context.Context, interval time.Duration, maxIterations int) *CycleResult {
	a.logger.Info("starting continuous monitoring",
		zap.Duration("interval", interval),
		zap.Int("maxIterations", maxIterations),
		zap.Bool("dryRun", a.dryRun),
	)

	var last *CycleResult
	for i := 0; maxIterations == 0 || i < maxIterations; i++ {
		if ctx.Err() != nil {
			break
		}

		last = a.AnalyzeAndFix(ctx, "")
		a.logger.Info("monitoring cycle complete",
			zap.Int("iteration", i+1),
			zap.String("cycle", last.ID),
			zap.String("grade", last.Health.Grade),
			zap.Int("actions", len(last.Results)),
		)

		if maxIterations != 0 && i == maxIterations-1 {
			break
		}
		select {
		case <-ctx.Done():
			a.logger.Info("monitoring cancelled")
			return last
		case <-time.After(interval):
		}
	}

	a.logger.Info("monitoring finished", zap.Int("totalActions", len(a.executor.History())))
	return last
}
