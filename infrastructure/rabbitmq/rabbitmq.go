// Package rabbitmq carries the async alert dispatch tasks. Delivery is
// at-least-once; handlers de-duplicate by message id.
package rabbitmq

import (
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/multierr"
)

var (
	defaultRotationTime = 30 * time.Second
	defaultRetry        = 3
)

type ExchangeType string

const (
	Fanout ExchangeType = "fanout"
)

type handler func(deliveries <-chan amqp.Delivery)

var (
	common CommonQueue
)

func NewHandlerWrapper(f func(msg *amqp.Delivery) error) *handlerWrapper {
	return &handlerWrapper{fun: f}
}

type handlerWrapper struct {
	fun func(msg *amqp.Delivery) error
}

func (h *handlerWrapper) HandlerWrap(deliveries <-chan amqp.Delivery) {
	for msg := range deliveries {
		if err := h.fun(&msg); err == nil {
			msg.Ack(false)
		}
	}
}

func InitRabbitMq(url string) error {
	common = NewCommonQueue(url)
	return nil
}

func GetCommonQueue() CommonQueue {
	return common
}

func Close() error {
	var errs error
	if common != nil {
		errs = multierr.Append(errs, common.Close())
	}
	return errs
}

type CommonQueue interface {
	Publish(topic string, message interface{}) error
	RetryPublish(topic string, message interface{})
	Subscription(topic, id string, h handler) error
	UnSubscription(topic string)
	Close() error
}

func NewCommonQueue(url string) CommonQueue {
	return &commonQueue{
		url:       url,
		producers: map[string]*FanoutProducer{},
		consumers: map[string]*FanoutConsumer{},
	}
}
