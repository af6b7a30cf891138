// Package messaging moves settlement events between the API and the
// receipts worker over Kafka, propagating trace context in message
// headers.
package messaging

import "github.com/segmentio/kafka-go"

const (
	// TopicOrderSettled carries one OrderSettledEvent per order paid.
	TopicOrderSettled = "payment.settled"

	// GroupReceipts is the consumer group of the receipts workers.
	GroupReceipts = "receipts-workers"
)

// headerCarrier adapts kafka message headers to the otel propagator.
type headerCarrier struct {
	msg *kafka.Message
}

func newHeaderCarrier(msg *kafka.Message) *headerCarrier {
	return &headerCarrier{msg: msg}
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{
		Key:   key,
		Value: []byte(value),
	})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}
