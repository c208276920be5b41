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

package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/llm-d/llm-d-cluster-remediator/internal/agent"
	"github.com/llm-d/llm-d-cluster-remediator/internal/audit"
	"github.com/llm-d/llm-d-cluster-remediator/internal/cluster"
	"github.com/llm-d/llm-d-cluster-remediator/internal/config"
	"github.com/llm-d/llm-d-cluster-remediator/internal/executor"
	"github.com/llm-d/llm-d-cluster-remediator/internal/logging"
	"github.com/llm-d/llm-d-cluster-remediator/internal/planner"
	"github.com/llm-d/llm-d-cluster-remediator/internal/safety"
)

// runtime holds a fully wired agent plus everything that needs shutdown.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	agent   *agent.Agent
	closers []func() error
}

// gateRuntime is the lighter wiring for commands that only need the audit
// history and the safety gate, not a cluster connection.
type gateRuntime struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   audit.Store
	gate    *safety.Gate
	closers []func() error
}

func loadFoundation() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

func openAuditStore(cfg *config.Config) (audit.Store, func() error, error) {
	switch cfg.Audit.Backend {
	case config.AuditBackendSQLite:
		store, err := audit.NewSQLStore(cfg.Audit.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		return store, store.Close, nil
	default:
		return audit.NewFileStore(cfg.Audit.Path), nil, nil
	}
}

func buildGateRuntime() (*gateRuntime, error) {
	cfg, logger, err := loadFoundation()
	if err != nil {
		return nil, err
	}

	rt := &gateRuntime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() error { return logger.Sync() })

	store, closer, err := openAuditStore(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = store
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}

	log := audit.NewLog(store, logger)
	rt.gate = safety.NewGate(cfg.Safety, log, logger)
	return rt, nil
}

func buildRuntime() (*runtime, error) {
	cfg, logger, err := loadFoundation()
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() error { return logger.Sync() })

	store, closer, err := openAuditStore(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}

	clientset, err := cluster.NewClientset(kubeconfig)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	dryRun := cfg.Executor.DryRun
	if execute {
		dryRun = false
	}

	log := audit.NewLog(store, logger)
	gate := safety.NewGate(cfg.Safety, log, logger)
	registry := cluster.NewKubeActions(clientset)
	exec := executor.New(gate, registry, log, logger, dryRun,
		executor.WithDispatchTimeout(cfg.DispatchTimeout()))

	var explainer planner.Explainer
	if cfg.Explainer.Enabled {
		oe, err := planner.NewOpenAIExplainer(cfg.Explainer.APIKey, cfg.Explainer.Model)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to build explainer: %w", err)
		}
		explainer = oe
	}

	provider := cluster.NewKubeSnapshotProvider(clientset)
	rt.agent = agent.New(provider, planner.NewRulePlanner(), explainer, gate, exec, logger, dryRun)

	logger.Info("remediator wired",
		zap.String("auditBackend", cfg.Audit.Backend),
		zap.Bool("dryRun", dryRun),
		zap.Bool("explainer", cfg.Explainer.Enabled),
	)
	return rt, nil
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

func (r *gateRuntime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}
