package server

import (
	"context"
	"testing"
	"time"

	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/storage"
)

type summaryFactory struct {
	storage.Factory
	sessions int64
	total    int64
	states   map[string]int64
}

func (f *summaryFactory) CountRunningJobsByCsres(ctx context.Context, code string) (int64, error) {
	return f.sessions, nil
}

func (f *summaryFactory) CountJobs(ctx context.Context) (int64, error) {
	return f.total, nil
}

func (f *summaryFactory) CountJobsByState(ctx context.Context) (map[string]int64, error) {
	return f.states, nil
}

type capturePublisher struct {
	topic    string
	messages []*entity.SummaryMessage
}

func (p *capturePublisher) Publish(topic string, message interface{}) error {
	p.topic = topic
	p.messages = append(p.messages, message.(*entity.SummaryMessage))
	return nil
}

func Test_Summarizer_Rollups(t *testing.T) {
	storage.SetFactory(&summaryFactory{
		sessions: 3,
		total:    12,
		states:   map[string]int64{"running": 5, "queuing": 7},
	})
	pub := &capturePublisher{}
	s := &Summarizer{events: pub, topic: "summary_topic", now: func() time.Time { return time.Unix(1700000000, 0) }}

	s.Vnc(context.Background())
	if len(pub.messages) != 1 {
		t.Fatalf("messages=%d", len(pub.messages))
	}
	msg := pub.messages[0]
	if pub.topic != "summary_topic" || msg.Scope != "vnc" {
		t.Errorf("topic=%s scope=%s", pub.topic, msg.Scope)
	}
	if msg.Payload["sessions"] != int64(3) {
		t.Errorf("payload=%v", msg.Payload)
	}
	if msg.MessageId == "" || msg.Timestamp != 1700000000 {
		t.Errorf("id=%q ts=%d", msg.MessageId, msg.Timestamp)
	}

	s.Cluster(context.Background())
	if len(pub.messages) != 2 {
		t.Fatalf("messages=%d", len(pub.messages))
	}
	cluster := pub.messages[1]
	if cluster.Scope != "cluster" || cluster.Payload["total"] != int64(12) {
		t.Errorf("scope=%s payload=%v", cluster.Scope, cluster.Payload)
	}
}
