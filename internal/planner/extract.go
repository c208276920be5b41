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

package planner

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/llm-d/llm-d-cluster-remediator/internal/interfaces"
)

// actionBlockStart matches the beginning of one labeled action block.
var actionBlockStart = regexp.MustCompile(`(?m)^\s*ACTION_(\d+):\s*$`)

// actionBlock is the wire shape of one extracted block.
type actionBlock struct {
	Action    string `yaml:"action"`
	Namespace string `yaml:"namespace"`
	Reasoning string `yaml:"reasoning"`
	Priority  string `yaml:"priority"`
}

// ExtractActions recovers ActionRecords from free-form analysis text.
// Labeled ACTION_N blocks are authoritative and extracted at explainer
// confidence. Text without any block falls back to keyword matching,
// which yields at most one low-confidence record. Text with neither
// yields an empty plan.
func ExtractActions(text string) []interfaces.ActionRecord {
	records := extractBlocks(text)
	if len(records) > 0 {
		return records
	}
	return extractKeyword(text)
}

func extractBlocks(text string) []interfaces.ActionRecord {
	starts := actionBlockStart.FindAllStringIndex(text, -1)
	var records []interfaces.ActionRecord
	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		body := blockBody(text[start[1]:end])
		block, ok := parseBlock(body)
		if !ok || block.Action == "" {
			continue
		}

		// Blocks naming an action outside the vocabulary are dropped so
		// they never reach the gate or consume rate budget at dispatch.
		action, err := interfaces.ParseActionType(block.Action)
		if err != nil {
			continue
		}

		namespace := block.Namespace
		if namespace == "" {
			namespace = "default"
		}
		priority := block.Priority
		if priority == "" {
			priority = "medium"
		}
		records = append(records, interfaces.ActionRecord{
			Action:     action,
			Namespace:  namespace,
			Parameters: map[string]string{},
			Reasoning:  block.Reasoning,
			Priority:   strings.ToLower(priority),
			Confidence: ConfidenceExplainer,
			Source:     SourceExplainer,
		})
	}
	return records
}

// blockBody keeps the indented lines following the label and dedents them
// so the block parses as a flat mapping.
func blockBody(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(lines) > 0 {
				break
			}
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			break
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, "\n")
}

// parseBlock parses a dedented block, first as YAML and then line-wise for
// text whose values contain characters YAML rejects in plain scalars.
func parseBlock(body string) (actionBlock, bool) {
	if body == "" {
		return actionBlock{}, false
	}

	var block actionBlock
	if err := yaml.Unmarshal([]byte(body), &block); err == nil && block.Action != "" {
		return block, true
	}

	block = actionBlock{}
	for _, line := range strings.Split(body, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "action":
			block.Action = value
		case "namespace":
			block.Namespace = value
		case "reasoning":
			block.Reasoning = value
		case "priority":
			block.Priority = value
		}
	}
	return block, block.Action != ""
}

// keywordRules map text patterns to a single suggested action. Specific
// patterns come before the generic ones so "bulk restart" is not claimed
// by the plain restart rule.
var keywordRules = []struct {
	pattern *regexp.Regexp
	action  interfaces.ActionType
}{
	{regexp.MustCompile(`(?i)bulk.*restart`), interfaces.ActionBulkRestartPods},
	{regexp.MustCompile(`(?i)apply.*(autoscaler|hpa)`), interfaces.ActionApplyAutoscaler},
	{regexp.MustCompile(`(?i)restart`), interfaces.ActionRestartPod},
	{regexp.MustCompile(`(?i)delete.*pod`), interfaces.ActionDeletePod},
	{regexp.MustCompile(`(?i)scale.*deployment`), interfaces.ActionScaleDeployment},
}

func extractKeyword(text string) []interfaces.ActionRecord {
	for _, rule := range keywordRules {
		if !rule.pattern.MatchString(text) {
			continue
		}
		return []interfaces.ActionRecord{{
			Action:     rule.action,
			Namespace:  "default",
			Parameters: map[string]string{},
			Reasoning:  "detected need for " + string(rule.action),
			Priority:   "medium",
			Confidence: ConfidenceKeyword,
			Source:     SourceKeyword,
		}}
	}
	return nil
}
