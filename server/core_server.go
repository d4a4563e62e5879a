package server

import (
	"fmt"

	"github.com/licoproject/lico-core/alert"
	"github.com/licoproject/lico-core/api"
	"github.com/licoproject/lico-core/client/directory"
	clientexec "github.com/licoproject/lico-core/client/exec"
	"github.com/licoproject/lico-core/client/mail"
	"github.com/licoproject/lico-core/client/monitor"
	"github.com/licoproject/lico-core/config"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure"
	"github.com/licoproject/lico-core/infrastructure/rabbitmq"
	"github.com/licoproject/lico-core/infrastructure/storage"
	"github.com/licoproject/lico-core/infrastructure/tsdb"
	"github.com/licoproject/lico-core/log"
	"github.com/licoproject/lico-core/notification"
	"github.com/licoproject/lico-core/periodic"
	"github.com/licoproject/lico-core/pkg/protocol"
	"github.com/licoproject/lico-core/pkg/utils"
	"github.com/licoproject/lico-core/scheduler"
	"github.com/licoproject/lico-core/version"
	"go.uber.org/multierr"
)

// CoreServer wires storage, messaging, the sync engine, the alert scanners
// and the http api into one process.
type CoreServer struct {
	app      *AppServer
	pprof    *protocol.PprofMetricServer
	tasks    *periodic.Scheduler
	worker   *notification.Worker
	store    *tsdb.Store
	executor *JobExecutor
	sync     *SyncEngine
}

func NewCoreServer() *CoreServer {
	return &CoreServer{}
}

func (s *CoreServer) Init() error {
	if err := config.Init(); err != nil {
		return err
	}
	cfg := config.GetCfg()
	if err := storage.InitMysql(cfg.Dsn); err != nil {
		return fmt.Errorf("CoreServer.Init InitMysql failed cause=%s", err.Error())
	}
	if err := rabbitmq.InitRabbitMq(cfg.AmqpUrl); err != nil {
		return fmt.Errorf("CoreServer.Init InitRabbitMq failed cause=%s", err.Error())
	}
	if err := infrastructure.InitEventmq(cfg.NsqLookupAddr); err != nil {
		return fmt.Errorf("CoreServer.Init InitEventmq failed cause=%s", err.Error())
	}
	store, err := tsdb.NewStore(cfg.InfluxAddr, cfg.InfluxDatabase)
	if err != nil {
		return err
	}
	s.store = store

	execCli := clientexec.NewClient()
	adapterFor := func(user string) (scheduler.Adapter, error) {
		adapter, err := scheduler.New(cfg.Scheduler, user, execCli)
		if err != nil {
			return nil, err
		}
		if lsf, ok := adapter.(*scheduler.Lsf); ok {
			lsf.SetMemoryRetry(cfg.Job.QueryMemoryRetry)
		}
		return adapter, nil
	}
	s.executor = NewJobExecutor(cfg, adapterFor, execCli)
	s.sync = NewSyncEngine(cfg, adapterFor, infrastructure.GetEventMq())
	api.Setup(s.executor)

	fanout, err := notification.NewFanout(cfg.Alert.Notifications, rabbitmq.GetCommonQueue(), cfg)
	if err != nil {
		return err
	}
	dirCli := directory.NewClient(cfg.DirectoryUrl)
	monCli := monitor.NewClient(cfg.MonitorUrl)
	s.worker = notification.NewWorker(cfg, rabbitmq.GetCommonQueue(), mail.NewClient(cfg.MailUrl), execCli)

	tasks := periodic.NewScheduler()
	tasks.Register("job_sync", cfg.Job.SyncInterval, s.sync.Sync)
	for _, kind := range entity.MetricKinds {
		scanner := alert.NewScanner(kind, store, dirCli, monCli, fanout)
		tasks.Register("alert_scan_"+kind.String(), cfg.Alert.ScanInterval, scanner.Scan)
	}
	summarizer := NewSummarizer(cfg, infrastructure.GetEventMq())
	tasks.Register("summary_cluster", cfg.SummaryInterval, summarizer.Cluster)
	tasks.Register("summary_group", cfg.SummaryInterval, summarizer.Group)
	tasks.Register("summary_latest", cfg.SummaryInterval, summarizer.Latest)
	tasks.Register("summary_vnc", cfg.SummaryInterval, summarizer.Vnc)
	s.tasks = tasks
	return nil
}

func (s *CoreServer) Start() error {
	log.Logger().Info("server starting")
	log.Logger().Info("version info: %+v", version.Version)
	cfg := config.GetCfg()
	if err := s.worker.Run(); err != nil {
		return err
	}
	s.tasks.Start()
	s.pprof = protocol.NewPprofMetricServer(cfg.PprofPort)
	utils.Wrap(func() {
		log.Logger().Info("pprof/metrics service start addr=%s", cfg.PprofPort)
		if err := s.pprof.Start(); err != nil {
			log.Logger().Error("CoreServer.Start pprof/metrics error cause=%s", err.Error())
		}
	})
	s.app = NewAppServer(cfg.ApiPort)
	utils.Wrap(func() {
		log.Logger().Info("http api service start addr=%s", cfg.ApiPort)
		if err := s.app.Run(); err != nil {
			log.Logger().Error("CoreServer.Start api server error cause=%s", err.Error())
		}
	})
	log.Logger().Info("server started")
	return nil
}

func (s *CoreServer) Stop() error {
	log.Logger().Info("server ready to close")
	var errs error
	s.tasks.Stop()
	errs = multierr.Append(errs, s.worker.Close())
	errs = multierr.Append(errs, s.app.Close())
	errs = multierr.Append(errs, s.pprof.Close())
	errs = multierr.Append(errs, infrastructure.GetEventMq().Close())
	errs = multierr.Append(errs, rabbitmq.Close())
	errs = multierr.Append(errs, s.store.Close())
	errs = multierr.Append(errs, storage.Close())
	log.Logger().Info("server is closed")
	log.Logger().Close()
	return errs
}
