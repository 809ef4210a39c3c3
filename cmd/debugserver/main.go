// Command debugserver exposes an HTTP surface over a running CLI-simulated
// canister host: health, Prometheus metrics, the in-memory log ring and the
// task scheduler's queue, for local inspection during development.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"canisdk/core"
	"canisdk/corelog"
	"canisdk/pkg/config"
	"canisdk/pkg/utils"
	"canisdk/scheduler"
)

// requestIDMiddleware tags every request with a UUID so log lines across a
// single request can be correlated, independent of chi's own sequential
// request-id middleware.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func main() {
	if _, err := config.LoadFromEnv(); err != nil {
		log.Fatalf("load config: %v", utils.Wrap(err, "debugserver startup"))
	}

	a := core.NewPageAllocator(core.NewHeapRawStore(), 256)
	sched := scheduler.NewTaskScheduler[demoTask](a.SubMemory(0), a.SubMemory(1), demoTaskCodec(), 256, func() uint64 { return uint64(time.Now().Unix()) })
	logger := corelog.Init(core.Principal("canisdk-debugserver"), a.SubMemory(10), a.SubMemory(11), a.SubMemory(12),
		corelog.DefaultSettings(), func() int64 { return time.Now().UnixNano() })

	srv := &server{sched: sched, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", srv.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/logs", srv.handleLogs)
	r.Get("/tasks", srv.handleTasks)
	r.Post("/tasks", srv.handleAppendTask)
	r.Post("/tasks/run", srv.handleRunTick)

	addr := config.AppConfig.DebugServer.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:8090"
	}
	log.Infof("debugserver listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal(err)
		os.Exit(1)
	}
}
