package broker

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Handler processes one message. A returned error is logged; the stream continues.
type Handler func(topic string, msg mqtt.Message) error

// Consumer subscribes one topic filter and fans messages into a Handler.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
	log     zerolog.Logger
}

func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler, log zerolog.Logger) *Consumer {
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler, log: log}
}

func (c *Consumer) SetHandler(h Handler) { c.handler = h }

// Consume subscribes and blocks until ctx ends, then unsubscribes.
func (c *Consumer) Consume(ctx context.Context) error {
	tok := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if c.handler == nil {
			c.log.Warn().Str("topic", msg.Topic()).Msg("broker: no handler set")
			return
		}
		if err := c.handler(msg.Topic(), msg); err != nil {
			c.log.Error().Err(err).Str("topic", msg.Topic()).Msg("broker: handler failed")
		}
	})
	if tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, tok.Error())
	}
	c.log.Info().Str("topic", c.topic).Int("qos", int(c.qos)).Msg("broker: subscribed")

	<-ctx.Done()
	c.client.Unsubscribe(c.topic).Wait()
	return nil
}
