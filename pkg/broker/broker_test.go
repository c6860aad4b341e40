package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 1 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

// loopback delivers published messages to the subscribed callback.
type loopback struct {
	mqtt.Client // unused methods panic

	mu           sync.Mutex
	cb           mqtt.MessageHandler
	subErr       error
	subscribed   chan struct{}
	unsubscribed bool
	published    [][]byte
}

func newLoopback() *loopback { return &loopback{subscribed: make(chan struct{})} }

func (l *loopback) Subscribe(_ string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subErr != nil {
		return doneToken{err: l.subErr}
	}
	l.cb = cb
	close(l.subscribed)
	return doneToken{}
}

func (l *loopback) Unsubscribe(...string) mqtt.Token {
	l.mu.Lock()
	l.unsubscribed = true
	l.mu.Unlock()
	return doneToken{}
}

func (l *loopback) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	l.mu.Lock()
	b := payload.([]byte)
	l.published = append(l.published, b)
	cb := l.cb
	l.mu.Unlock()
	if cb != nil {
		cb(l, message{topic: topic, payload: b})
	}
	return doneToken{}
}

func TestPublishReachesConsumer(t *testing.T) {
	t.Parallel()
	client := newLoopback()
	got := make(chan string, 2)
	c := NewConsumer(client, "sensor/readings/#", 1, func(topic string, msg mqtt.Message) error {
		got <- topic + " " + string(msg.Payload())
		return errors.New("handler errors are logged, not fatal")
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx) }()
	<-client.subscribed

	pub := NewPublisher(client, "sensor/readings/dev-1", 1)
	if err := pub.Publish(map[string]float64{"temperature": 21}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := pub.Publish("raw"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if first := <-got; first != `sensor/readings/dev-1 {"temperature":21}` {
		t.Fatalf("unexpected delivery %q", first)
	}
	if second := <-got; second != "sensor/readings/dev-1 raw" {
		t.Fatalf("unexpected delivery %q", second)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Consume returned %v", err)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if !client.unsubscribed {
		t.Fatal("Consume must unsubscribe on exit")
	}
}

func TestConsumeSubscribeError(t *testing.T) {
	t.Parallel()
	client := newLoopback()
	client.subErr = errors.New("not authorized")
	c := NewConsumer(client, "sensor/readings/#", 1, nil, zerolog.Nop())
	if err := c.Consume(context.Background()); err == nil {
		t.Fatal("expected the subscribe error")
	}
}

func TestPublishRejectsUnencodable(t *testing.T) {
	t.Parallel()
	pub := NewPublisher(newLoopback(), "t", 0)
	if err := pub.Publish(map[string]interface{}{"bad": make(chan int)}); err == nil {
		t.Fatal("expected an encode error")
	}
	if err := pub.Publish([]byte(`{}`)); err != nil {
		t.Fatalf("byte payloads go out as is: %v", err)
	}
}
