package server

import (
	"net/http"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
	"github.com/licoproject/lico-core/api"
	"github.com/licoproject/lico-core/log"
	"github.com/licoproject/lico-core/pkg/errors"
	"github.com/licoproject/lico-core/pkg/protocol"
)

func NewAppServer(addr string) *AppServer {
	return &AppServer{addr: addr}
}

type AppServer struct {
	close int32
	addr  string
	srv   *http.Server
}

func (app *AppServer) Run() error {
	router := httprouter.New()

	// job
	router.POST("/api/job/submit", app.guard(api.SubmitJob))
	router.POST("/api/job/rerun/:job_id", app.guard(api.RerunJob))
	router.POST("/api/job/cancel/:job_id", app.guard(api.CancelJob))
	router.DELETE("/api/job/delete/:job_id", app.guard(api.DeleteJob))
	router.GET("/api/job/describe/:job_id", app.guard(api.DescribeJob))
	router.GET("/api/job/history/:job_id", app.guard(api.HistoryJob))
	router.GET("/api/job/running", app.guard(api.ListRunningJobs))
	router.GET("/api/job/queues", app.guard(api.ListQueues))
	router.POST("/api/job/hold", app.guard(api.HoldJobs))
	router.POST("/api/job/release", app.guard(api.ReleaseJobs))
	router.POST("/api/job/requeue", app.guard(api.RequeueJobs))
	router.POST("/api/job/priority", app.guard(api.UpdateJobPriority))
	router.POST("/api/job/suspend", app.guard(api.SuspendJobs))
	router.POST("/api/job/resume", app.guard(api.ResumeJobs))

	// alert policy
	router.GET("/api/alert/policy/lists", app.guard(api.ListPolicies))
	router.POST("/api/alert/policy/create", app.guard(api.CreatePolicy))
	router.POST("/api/alert/policy/update/:policy_id", app.guard(api.UpdatePolicy))
	router.DELETE("/api/alert/policy/delete/:policy_id", app.guard(api.DeletePolicy))

	// alert
	router.GET("/api/alert/lists", app.guard(api.ListAlerts))
	router.POST("/api/alert/confirm", app.guard(api.ConfirmAlerts))
	router.POST("/api/alert/resolve", app.guard(api.ResolveAlerts))
	router.POST("/api/alert/delete", app.guard(api.DeleteAlerts))

	app.srv = &http.Server{Addr: app.addr, Handler: router}
	if err := app.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (app *AppServer) guard(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if atomic.LoadInt32(&app.close) < 0 {
			protocol.FailedJson(w, errors.ServerClosedError, "")
			return
		}
		log.Logger().Info("%s %s", r.Method, r.RequestURI)
		next(w, r, p)
	}
}

func (app *AppServer) Close() error {
	atomic.AddInt32(&app.close, -1)
	if app.srv != nil {
		return app.srv.Close()
	}
	return nil
}
