// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("decisioncore")
	meter  = otel.Meter("decisioncore")
)

var (
	loopIterationsTotal   metric.Int64Counter
	parseFailuresTotal    metric.Int64Counter
	executorFailuresTotal metric.Int64Counter
	toolInvocationLatency metric.Float64Histogram
	treeDepth             metric.Int64Histogram
	nodeBudgetUtilization metric.Float64Histogram
	streamBackpressure    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates every instrument exactly once. Safe to call
// repeatedly; subsequent calls are no-ops that return the first error.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		loopIterationsTotal, err = meter.Int64Counter(
			"decisioncore_loop_iterations_total",
			metric.WithDescription("Agent loop iterations by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseFailuresTotal, err = meter.Int64Counter(
			"decisioncore_parse_failures_total",
			metric.WithDescription("Model replies that failed to parse into a tool call"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		executorFailuresTotal, err = meter.Int64Counter(
			"decisioncore_executor_failures_total",
			metric.WithDescription("Tool executions that returned an error"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		toolInvocationLatency, err = meter.Float64Histogram(
			"decisioncore_tool_invocation_duration_seconds",
			metric.WithDescription("Tool executor latency by tool name"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		treeDepth, err = meter.Int64Histogram(
			"decisioncore_tree_depth",
			metric.WithDescription("Depth of an expanded action node at evaluation time"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodeBudgetUtilization, err = meter.Float64Histogram(
			"decisioncore_node_budget_utilization_percent",
			metric.WithDescription("Fraction of a tree search's node budget consumed at termination"),
			metric.WithUnit("%"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		streamBackpressure, err = meter.Int64Counter(
			"decisioncore_event_stream_dropped_total",
			metric.WithDescription("Events dropped because a session's event stream consumer fell behind"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// RecordLoopIteration records one Agent Loop or Tree Controller
// iteration, tagged with its terminal step.Outcome name.
func RecordLoopIteration(ctx context.Context, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	loopIterationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordParseFailure records a reply that the tool-call parser
// rejected, tagged with the toolcall.Failure reason (§7).
func RecordParseFailure(ctx context.Context, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	parseFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordExecutorFailure records a tool executor error, tagged by tool
// name and the node.Observation.ErrorKind that resulted.
func RecordExecutorFailure(ctx context.Context, toolName, errorKind string) {
	if err := initMetrics(); err != nil {
		return
	}
	executorFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("error_kind", errorKind),
	))
}

// RecordToolInvocation records a completed tool executor call's
// latency, tagged by tool name and success.
func RecordToolInvocation(ctx context.Context, toolName string, d time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	toolInvocationLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.Bool("success", success),
	))
}

// RecordTreeDepth records the depth of a node at evaluation time
// (§4.7's "value backpropagation" step).
func RecordTreeDepth(ctx context.Context, depth int) {
	if err := initMetrics(); err != nil {
		return
	}
	treeDepth.Record(ctx, int64(depth))
}

// RecordNodeBudgetUtilization records what fraction of a tree
// controller's configured node budget was consumed when the search
// terminated (§4.7 termination condition "budget").
func RecordNodeBudgetUtilization(ctx context.Context, nodesUsed, nodeBudget int) {
	if err := initMetrics(); err != nil || nodeBudget <= 0 {
		return
	}
	pct := float64(nodesUsed) / float64(nodeBudget) * 100
	nodeBudgetUtilization.Record(ctx, pct)
}

// RecordStreamDrop records an event dropped by a session's Event
// Stream because its consumer fell behind (§5 "Backpressure").
func RecordStreamDrop(ctx context.Context, sessionID string) {
	if err := initMetrics(); err != nil {
		return
	}
	streamBackpressure.Add(ctx, 1, metric.WithAttributes(attribute.String("session_id", sessionID)))
}

// StartStepSpan starts a span around one step.Run invocation.
func StartStepSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.step",
		trace.WithAttributes(attribute.String("session_id", sessionID)),
	)
}

// StartToolSpan starts a span around one tool executor invocation.
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.tool",
		trace.WithAttributes(attribute.String("tool", toolName)),
	)
}
