package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"canisdk/core"
	"canisdk/corelog"
	"canisdk/scheduler"
)

type server struct {
	sched  *scheduler.TaskScheduler[demoTask]
	logger *corelog.Logger
}

var debugServerCaller = core.Principal("canisdk-debugserver")

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type logLine struct {
	TimestampNanos uint64 `json:"timestamp_nanos"`
	Level          string `json:"level"`
	Target         string `json:"target"`
	Message        string `json:"message"`
}

func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.ParseUint(r.URL.Query().Get("offset"), 10, 64)
	count, _ := strconv.ParseUint(r.URL.Query().Get("count"), 10, 64)
	if count == 0 {
		count = 100
	}
	recs, err := s.logger.GetLogs(debugServerCaller, offset, count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	out := make([]logLine, 0, len(recs))
	for _, rec := range recs {
		name := levelName(rec.Level)
		logLinesEmittedTotal.WithLabelValues(name).Inc()
		out = append(out, logLine{TimestampNanos: rec.TimestampNanos, Level: name, Target: rec.Target, Message: rec.Message})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func levelName(l corelog.Level) string {
	switch l {
	case corelog.LevelTrace:
		return "trace"
	case corelog.LevelDebug:
		return "debug"
	case corelog.LevelInfo:
		return "info"
	case corelog.LevelWarn:
		return "warn"
	case corelog.LevelError:
		return "error"
	default:
		return "unknown"
	}
}

type taskView struct {
	ID       uint32 `json:"id"`
	Label    string `json:"label"`
	Status   int    `json:"status"`
	Failures uint32 `json:"failures"`
}

func (s *server) handleTasks(w http.ResponseWriter, r *http.Request) {
	idParam := r.URL.Query().Get("id")
	if idParam == "" {
		http.Error(w, "id query parameter is required", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(idParam, 10, 32)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	task, err := s.sched.GetTask(uint32(id))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(taskView{ID: task.ID, Label: task.Task.Label, Status: int(task.Status), Failures: task.Failures})
}

type appendTaskRequest struct {
	Label string `json:"label"`
}

func (s *server) handleAppendTask(w http.ResponseWriter, r *http.Request) {
	var req appendTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id := s.sched.AppendTask(demoTask{Label: req.Label},
		scheduler.RetryPolicy{Kind: scheduler.RetryMaxRetries, MaxRetries: 3},
		scheduler.BackoffPolicy{Kind: scheduler.BackoffFixed, FixedSecs: 5})
	tasksAppendedTotal.Inc()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]uint32{"id": id})
}

func (s *server) handleRunTick(w http.ResponseWriter, _ *http.Request) {
	n := s.sched.Run(scheduler.ExecContext{})
	if n > 0 {
		tasksLaunchedTotal.Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"launched": n})
}
