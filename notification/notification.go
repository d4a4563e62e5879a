// Package notification fans fired alerts out to the configured handlers.
// Handlers only enqueue; the workers deliver asynchronously with
// at-least-once semantics and message-id de-duplication.
package notification

import (
	"fmt"
	"io/ioutil"

	"github.com/ghodss/yaml"
	json "github.com/json-iterator/go"
	"github.com/licoproject/lico-core/config"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/rabbitmq"
	"github.com/licoproject/lico-core/log"
	"github.com/licoproject/lico-core/pkg/utils"
)

// Handler receives every freshly created alert. Errors are logged and never
// surface to the scanner.
type Handler interface {
	Name() string
	Handle(policy *entity.Policy, alert *entity.Alert) error
}

// handlersFile the notifications yaml shape.
type handlersFile struct {
	Handlers []string `json:"handlers"`
}

// Fanout immutable handler list, loaded once at startup.
type Fanout struct {
	handlers []Handler
}

func NewFanout(path string, queue rabbitmq.CommonQueue, cfg *config.Config) (*Fanout, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("notification.NewFanout read %s failed cause=%s", path, err.Error())
	}
	hf := &handlersFile{}
	if err := yaml.Unmarshal(b, hf); err != nil {
		return nil, fmt.Errorf("notification.NewFanout decode %s failed cause=%s", path, err.Error())
	}
	f := &Fanout{}
	for _, name := range hf.Handlers {
		switch name {
		case "email":
			f.handlers = append(f.handlers, &emailHandler{queue: queue, topic: cfg.EmailTopic})
		case "script":
			f.handlers = append(f.handlers, &scriptHandler{queue: queue, topic: cfg.ScriptTopic})
		default:
			log.Logger().Warn("notification handler=%s unknown, skipped", name)
		}
	}
	return f, nil
}

func (f *Fanout) Notify(policy *entity.Policy, alert *entity.Alert) {
	for _, h := range f.handlers {
		if err := h.Handle(policy, alert); err != nil {
			log.Logger().Error("notification handler=%s policy_id=%d alert_id=%d failed cause=%s", h.Name(), policy.Id, alert.Id, err.Error())
		}
	}
}

type emailHandler struct {
	queue rabbitmq.CommonQueue
	topic string
}

func (h *emailHandler) Name() string { return "email" }

func (h *emailHandler) Handle(policy *entity.Policy, alert *entity.Alert) error {
	targets := recipients(policy.Targets)
	if len(targets) == 0 {
		return nil
	}
	title, body := renderMail(policy, alert)
	return h.queue.Publish(h.topic, &entity.EmailTaskMessage{
		MessageId: utils.UUID(),
		Target:    targets,
		Title:     title,
		Body:      body,
		Language:  policy.Language,
	})
}

type scriptHandler struct {
	queue rabbitmq.CommonQueue
	topic string
}

func (h *scriptHandler) Name() string { return "script" }

func (h *scriptHandler) Handle(policy *entity.Policy, alert *entity.Alert) error {
	if policy.Script == "" {
		return nil
	}
	return h.queue.Publish(h.topic, &entity.ScriptTaskMessage{
		MessageId:  utils.UUID(),
		Script:     policy.Script,
		Node:       alert.Node,
		PolicyName: policy.Name,
		Level:      policy.Level,
	})
}

// recipients parses the policy target list and de-duplicates emails.
func recipients(targets string) []string {
	if targets == "" {
		return nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(targets), &raw); err != nil {
		log.Logger().Warn("notification decode targets failed cause=%s", err.Error())
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, t := range raw {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func renderMail(policy *entity.Policy, alert *entity.Alert) (title, body string) {
	switch policy.Language {
	case "zh":
		title = fmt.Sprintf("[LICO] 节点告警: %s", policy.Name)
		body = fmt.Sprintf("节点 %s 触发告警策略 %s (级别 %s)", alert.Node, policy.Name, policy.Level)
	default:
		title = fmt.Sprintf("[LICO] node alert: %s", policy.Name)
		body = fmt.Sprintf("node %s fired alert policy %s (level %s)", alert.Node, policy.Name, policy.Level)
	}
	if alert.Index >= 0 {
		body = fmt.Sprintf("%s gpu_index=%d", body, alert.Index)
	}
	if alert.Comment != "" {
		body = fmt.Sprintf("%s detail=%s", body, alert.Comment)
	}
	return title, body
}
