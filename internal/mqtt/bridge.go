//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"taskomat/internal/comm"
	"taskomat/internal/task"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge forwards engine lifecycle messages to MQTT and accepts remote
// termination requests.
type Bridge struct {
	client   pahomqtt.Client
	executor *task.Executor
	bus      *comm.Bus
	prefix   string
	logger   *slog.Logger
	unsub    func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(executor *task.Executor, bus *comm.Bus, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		executor: executor,
		bus:      bus,
		prefix:   cfg.TopicPrefix,
		logger:   logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("taskomat").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.subscribeCommands()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to the message bus and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.bus.Subscribe(b.handleMessage)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleMessage(msg comm.Message) {
	b.publish(eventTopic(b.prefix), mustJSON(msg), false)
}

// eventTopic is where lifecycle messages are published.
func eventTopic(prefix string) string {
	return prefix + "/sequences/events"
}

// terminateTopic accepts remote termination requests; any payload triggers.
func terminateTopic(prefix string) string {
	return prefix + "/sequences/terminate"
}

func (b *Bridge) subscribeCommands() {
	token := b.client.Subscribe(terminateTopic(b.prefix), 1,
		func(_ pahomqtt.Client, m pahomqtt.Message) {
			b.logger.Info("termination requested via MQTT", "topic", m.Topic())
			b.executor.Cancel()
		})
	if !token.WaitTimeout(5 * time.Second) {
		b.logger.Warn("mqtt subscribe timeout", "topic", terminateTopic(b.prefix))
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Error("mqtt subscribe", "err", err)
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publish(topic string, payload []byte, retain bool) {
	token := b.client.Publish(topic, 1, retain, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("mqtt publish timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			b.logger.Error("mqtt publish", "err", err, "topic", topic)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
