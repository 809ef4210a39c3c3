package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksLaunchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "canisdk",
		Subsystem: "scheduler",
		Name:      "tasks_launched_total",
		Help:      "Total number of scheduler ticks that launched at least one task.",
	})
	tasksAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "canisdk",
		Subsystem: "scheduler",
		Name:      "tasks_appended_total",
		Help:      "Total number of tasks appended via the debug server.",
	})
	logLinesEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canisdk",
		Subsystem: "corelog",
		Name:      "log_lines_served_total",
		Help:      "Total number of log lines served through the /logs endpoint, by level.",
	}, []string{"level"})
)
