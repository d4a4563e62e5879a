package protocol

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncPassTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lico",
		Subsystem: "job",
		Name:      "sync_pass_total",
		Help:      "Completed job synchronization passes.",
	})
	SyncJobUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lico",
		Subsystem: "job",
		Name:      "sync_updated_total",
		Help:      "Jobs updated by the synchronization engine.",
	})
	SubmitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lico",
		Subsystem: "job",
		Name:      "submit_total",
		Help:      "Job submissions by result.",
	}, []string{"result"})
	CsresAllocated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lico",
		Subsystem: "csres",
		Name:      "allocated_total",
		Help:      "Cross scheduler resources allocated by code.",
	}, []string{"code"})
	AlertCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lico",
		Subsystem: "alert",
		Name:      "created_total",
		Help:      "Alerts created by metric policy.",
	}, []string{"metric"})
)

type PprofMetricServer struct {
	srv *http.Server
}

// NewPprofMetricServer exposes prometheus metrics and pprof on a side port.
func NewPprofMetricServer(addr string) *PprofMetricServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return &PprofMetricServer{srv: &http.Server{Addr: addr, Handler: mux}}
}

func (s *PprofMetricServer) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *PprofMetricServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
