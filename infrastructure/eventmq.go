// Package infrastructure hosts the messaging backends. The event bus carries
// downstream job events (accounting charge, template notify, summary rollups)
// to external listeners; contract is publish-and-forget with at-least-once
// delivery.
package infrastructure

import (
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"strconv"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/licoproject/lico-core/pkg/utils"
	"github.com/nsqio/go-nsq"
)

const (
	nsqNodesApi  = "http://%s/nodes"
	defaultRetry = 3
)

var (
	mqt Eventmq
)

type MqProcess func(message *nsq.Message) error

type Eventmq interface {
	RetryPublish(topic string, message interface{})
	Publish(topic string, message interface{}) error
	Subscription(topic, channel string, handler nsq.Handler) error
	UnSubscription(topic string)
	Close() error
}

func NewEmptyHandler(p MqProcess) *emptyHandler {
	return &emptyHandler{f: p}
}

type emptyHandler struct {
	f MqProcess
}

func (e *emptyHandler) HandleMessage(message *nsq.Message) error {
	return e.f(message)
}

func GetEventMq() Eventmq {
	return mqt
}

type Consumers struct {
	topic string
	c     *nsq.Consumer
}

type eventmq struct {
	loopaddr  string
	mux       sync.Mutex
	producer  *nsq.Producer
	consumers []*Consumers
	nsqdAddrs []string
}

func InitEventmq(loopaddr string) error {
	mq := &eventmq{
		loopaddr: loopaddr,
	}
	if err := mq.nsqdParse(loopaddr); err != nil {
		return err
	}
	if err := mq.initproducer(); err != nil {
		return err
	}
	mqt = mq
	return nil
}

// SetEventMq test hook
func SetEventMq(mq Eventmq) {
	mqt = mq
}

func (d *eventmq) initproducer() error {
	p, err := nsq.NewProducer(d.nsqdAddrs[0], nsq.NewConfig())
	if err != nil {
		return err
	}
	p.SetLoggerLevel(nsq.LogLevelError)
	d.producer = p
	return nil
}

// nsqdParse asks nsqlookupd for the nsqd node set.
func (d *eventmq) nsqdParse(nslookup string) error {
	addr := fmt.Sprintf(nsqNodesApi, nslookup)
	resp, err := http.Get(addr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("nsqlookup %s http.status=%s", addr, resp.Status)
	}
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var nodes struct {
		Producers []struct {
			BroadcastAddress string `json:"broadcast_address"`
			TcpPort          int    `json:"tcp_port"`
		} `json:"producers"`
	}
	if err := json.Unmarshal(b, &nodes); err != nil {
		return fmt.Errorf("nsqlookup decode failed cause=%s", err.Error())
	}
	if len(nodes.Producers) == 0 {
		return fmt.Errorf("nsqlookup %s returned no nsqd nodes", addr)
	}
	for _, p := range nodes.Producers {
		d.nsqdAddrs = append(d.nsqdAddrs, net.JoinHostPort(p.BroadcastAddress, strconv.Itoa(p.TcpPort)))
	}
	return nil
}

func (d *eventmq) Publish(topic string, message interface{}) error {
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return d.producer.Publish(topic, b)
}

func (d *eventmq) RetryPublish(topic string, message interface{}) {
	utils.Retry(defaultRetry, func() error {
		return d.Publish(topic, message)
	})
}

func (d *eventmq) Subscription(topic, channel string, handler nsq.Handler) error {
	d.mux.Lock()
	defer d.mux.Unlock()
	c, err := nsq.NewConsumer(topic, channel, nsq.NewConfig())
	if err != nil {
		return err
	}
	c.SetLoggerLevel(nsq.LogLevelError)
	c.AddHandler(handler)
	if err := c.ConnectToNSQLookupd(d.loopaddr); err != nil {
		return err
	}
	d.consumers = append(d.consumers, &Consumers{topic: topic, c: c})
	return nil
}

func (d *eventmq) UnSubscription(topic string) {
	d.mux.Lock()
	defer d.mux.Unlock()
	keep := d.consumers[:0]
	for _, c := range d.consumers {
		if c.topic == topic {
			c.c.Stop()
			continue
		}
		keep = append(keep, c)
	}
	d.consumers = keep
}

func (d *eventmq) Close() error {
	d.mux.Lock()
	defer d.mux.Unlock()
	for _, c := range d.consumers {
		c.c.Stop()
	}
	if d.producer != nil {
		d.producer.Stop()
	}
	return nil
}
