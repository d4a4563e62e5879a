package entity

// JobEventMessage published to the charge / notify topics on a terminal transition.
type JobEventMessage struct {
	MessageId string                 `json:"message_id"`
	Event     string                 `json:"event"`
	Job       map[string]interface{} `json:"job"`
	Timestamp int64                  `json:"timestamp"`
}

// EmailTaskMessage async mail dispatch for a fired alert.
type EmailTaskMessage struct {
	MessageId string   `json:"message_id"`
	Target    []string `json:"target"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Language  string   `json:"language"`
}

// ScriptTaskMessage async alert script invocation.
type ScriptTaskMessage struct {
	MessageId  string `json:"message_id"`
	Script     string `json:"script"`
	Node       string `json:"node"`
	PolicyName string `json:"policy_name"`
	Level      string `json:"level"`
}

// SummaryMessage periodic rollup event.
type SummaryMessage struct {
	MessageId string                 `json:"message_id"`
	Scope     string                 `json:"scope"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"`
}
