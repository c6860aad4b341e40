package broker

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Publisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

func NewPublisher(client mqtt.Client, topic string, qos byte) *Publisher {
	return &Publisher{client: client, topic: topic, qos: qos, timeout: 5 * time.Second}
}

// Publish sends v as JSON; []byte and string payloads go out as is.
func (p *Publisher) Publish(v interface{}) error {
	var payload []byte
	switch m := v.(type) {
	case []byte:
		payload = m
	case string:
		payload = []byte(m)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		payload = b
	}

	tok := p.client.Publish(p.topic, p.qos, false, payload)
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timed out after %s", p.topic, p.timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Topic() string { return p.topic }
