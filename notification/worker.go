package notification

import (
	"context"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	clientexec "github.com/licoproject/lico-core/client/exec"
	"github.com/licoproject/lico-core/client/mail"
	"github.com/licoproject/lico-core/config"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/rabbitmq"
	"github.com/licoproject/lico-core/log"
	"github.com/licoproject/lico-core/pkg/utils"
	"github.com/streadway/amqp"
)

const scriptTimeout = 60 * time.Second

// Worker consumes the async alert tasks. Handlers are idempotent: redelivered
// messages are dropped by message id.
type Worker struct {
	cfg        *config.Config
	queue      rabbitmq.CommonQueue
	mail       *mail.Client
	exec       *clientexec.Client
	dedup      *utils.Deduplication
	consumerId string
}

func NewWorker(cfg *config.Config, queue rabbitmq.CommonQueue, mailCli *mail.Client, execCli *clientexec.Client) *Worker {
	return &Worker{
		cfg:        cfg,
		queue:      queue,
		mail:       mailCli,
		exec:       execCli,
		dedup:      utils.NewDeduplication(),
		consumerId: utils.UUID(),
	}
}

func (w *Worker) Run() error {
	if err := w.queue.Subscription(w.cfg.EmailTopic, w.consumerId, rabbitmq.NewHandlerWrapper(w.handleEmail).HandlerWrap); err != nil {
		return err
	}
	return w.queue.Subscription(w.cfg.ScriptTopic, w.consumerId, rabbitmq.NewHandlerWrapper(w.handleScript).HandlerWrap)
}

func (w *Worker) Close() error {
	w.queue.UnSubscription(w.cfg.EmailTopic)
	w.queue.UnSubscription(w.cfg.ScriptTopic)
	return nil
}

func (w *Worker) handleEmail(msg *amqp.Delivery) error {
	task := &entity.EmailTaskMessage{}
	if err := json.Unmarshal(msg.Body, task); err != nil {
		log.Logger().Error("Worker.handleEmail decode failed cause=%s", err.Error())
		return nil
	}
	if w.dedup.Exist(task.MessageId) {
		return nil
	}
	if err := w.mail.Send(task.Target, task.Title, task.Body); err != nil {
		log.Logger().Error("Worker.handleEmail message_id=%s send failed cause=%s", task.MessageId, err.Error())
	}
	return nil
}

func (w *Worker) handleScript(msg *amqp.Delivery) error {
	task := &entity.ScriptTaskMessage{}
	if err := json.Unmarshal(msg.Body, task); err != nil {
		log.Logger().Error("Worker.handleScript decode failed cause=%s", err.Error())
		return nil
	}
	if w.dedup.Exist(task.MessageId) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), scriptTimeout)
	defer cancel()
	script := filepath.Join(w.cfg.Alert.ScriptsDir, task.Script)
	_, err := w.exec.RunAs(ctx, "", "env",
		"node_name="+task.Node,
		"policy_level="+task.Level,
		"policy_name="+task.PolicyName,
		script)
	if err != nil {
		log.Logger().Error("Worker.handleScript message_id=%s script=%s failed cause=%s", task.MessageId, task.Script, err.Error())
	}
	return nil
}
