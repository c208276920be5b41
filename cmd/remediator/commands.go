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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/llm-d/llm-d-cluster-remediator/internal/metrics"
)

var (
	configPath string
	kubeconfig string
	execute    bool

	rootCmd = &cobra.Command{
		Use:   "remediator",
		Short: "Autonomous Kubernetes cluster remediation agent",
		Long: `remediator watches a Kubernetes cluster, scores its health, detects
failure patterns, and plans corrective actions. Actions pass through a
safety gate before execution; by default every action is simulated.`,
		SilenceUsage: true,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze [prompt]",
		Short: "Run one analysis cycle and print the report",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAnalyze,
	}

	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Analyze and remediate on an interval until stopped",
		Args:  cobra.NoArgs,
		RunE:  runMonitor,
	}

	safetyCmd = &cobra.Command{
		Use:   "safety",
		Short: "Print the safety gate limits and current consumption",
		Args:  cobra.NoArgs,
		RunE:  runSafety,
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Print the persisted audit history",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "path to a kubeconfig file (defaults to in-cluster, then ~/.kube/config)")

	analyzeCmd.Flags().BoolVar(&execute, "execute", false, "execute allowed actions instead of simulating them")
	monitorCmd.Flags().BoolVar(&execute, "execute", false, "execute allowed actions instead of simulating them")

	rootCmd.AddCommand(analyzeCmd, monitorCmd, safetyCmd, historyCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	prompt := ""
	if len(args) == 1 {
		prompt = args[0]
	}

	result := rt.agent.AnalyzeAndFix(cmd.Context(), prompt)
	fmt.Println(result.Report)

	if len(result.Results) > 0 {
		fmt.Println("## EXECUTION RESULTS")
		fmt.Println()
		for _, r := range result.Results {
			fmt.Printf("- [%s] %s: %s\n", strings.ToUpper(string(r.Status)), r.Action, r.Message)
		}
	}

	if result.Err != "" {
		return fmt.Errorf("analysis degraded: %s", result.Err)
	}
	return nil
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := rt.cfg.Monitor.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.Serve(addr); err != nil {
				rt.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	rt.agent.Monitor(ctx, rt.cfg.MonitorInterval(), rt.cfg.Monitor.MaxIterations)
	return nil
}

func runSafety(cmd *cobra.Command, _ []string) error {
	rt, err := buildGateRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	return printJSON(rt.gate.SafetyStatus())
}

func runHistory(cmd *cobra.Command, _ []string) error {
	rt, err := buildGateRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load audit history: %w", err)
	}
	return printJSON(entries)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
