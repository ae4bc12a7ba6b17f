package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"
	"github.com/sony/gobreaker"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/internal/config"
	"github.com/DmytroIE/Monapps-v5/pkg/rawdata"
)

// MessageHandler is invoked once per decoded device payload (spec.md §6).
// Handlers are expected to catch their own failures and turn them into
// alarm-log entries per §7's propagation policy; the client only logs
// decode errors, never payload-processing errors.
type MessageHandler func(devUi string, rows map[string]rawdata.DeviceRowInput)

// Client wraps a paho MQTT connection: subscribes the ingress topic on
// connect, decodes both accepted ingress shapes (§6), and publishes egress
// messages through a circuit breaker so a flapping broker doesn't spin the
// transport loop (§7's IOError policy — auto-reconnect, alarm-logged).
// Grounded on original_source's run_mqtt_sub.py/mqtt_publisher.py
// connect/subscribe/on_message wiring.
type Client struct {
	cfg     config.MQTTConfig
	log     logr.Logger
	handler MessageHandler
	breaker *gobreaker.CircuitBreaker
	paho    paho.Client
}

// New constructs a Client. The handler is called synchronously from paho's
// message-delivery goroutine, same as the original on_message callback.
func New(cfg config.MQTTConfig, log logr.Logger, handler MessageHandler) *Client {
	c := &Client{cfg: cfg, log: log.WithName("mqtt"), handler: handler}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Info("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.paho = paho.NewClient(opts)
	return c
}

// Connect dials the broker and blocks until the connection succeeds or the
// configured connect timeout elapses.
func (c *Client) Connect(_ context.Context) error {
	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	token := c.paho.Connect()
	if !token.WaitTimeout(timeout) {
		return apperrors.NewIOError("mqtt connect", fmt.Errorf("mqtt: connect timed out after %s", timeout))
	}
	if err := token.Error(); err != nil {
		return apperrors.NewIOError("mqtt connect", err)
	}
	return nil
}

// Disconnect drops the connection, matching run_mqtt_sub.py's
// SIGINT/SIGTERM handler.
func (c *Client) Disconnect() {
	c.paho.Disconnect(250)
}

func (c *Client) onConnect(cl paho.Client) {
	c.log.Info("connected to broker")
	topic := c.cfg.IngressTopic
	if topic == "" {
		topic = "rawdata/#"
	}
	if token := cl.Subscribe(topic, 0, c.onMessage); token.Wait() && token.Error() != nil {
		c.log.Error(token.Error(), "failed to subscribe", "topic", topic)
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.log.Error(err, "disconnected from broker")
}

// onMessage implements §6's dispatch rule: a topic containing "chirpstack"
// is decoded via the Chirpstack envelope, everything else via the generic
// multi-device shape. Invalid JSON or a malformed payload is dropped with
// an error log, never propagated.
func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	if IsChirpstackTopic(topic) {
		devUi, rows, err := DecodeChirpstack(payload)
		if err != nil {
			c.log.Error(err, "dropping invalid chirpstack payload", "topic", topic)
			return
		}
		c.handler(devUi, rows)
		return
	}

	decoded, err := DecodeGeneric(payload)
	if err != nil {
		c.log.Error(err, "dropping invalid payload", "topic", topic)
		return
	}
	for devUi, rows := range decoded {
		c.handler(devUi, rows)
	}
}

// Publish sends an egress message (spec.md §6: topic
// procdata/<instance_id>/<model>/<pk>, QoS 0) through the circuit breaker.
func (c *Client) Publish(topic string, body []byte) error {
	_, err := c.breaker.Execute(func() (any, error) {
		token := c.paho.Publish(topic, 0, false, body)
		if !token.WaitTimeout(5 * time.Second) {
			return nil, fmt.Errorf("mqtt: publish timed out")
		}
		return nil, token.Error()
	})
	if err != nil {
		return apperrors.NewIOError("mqtt publish", err)
	}
	return nil
}

// EgressTopic renders spec.md §6's publish topic grammar:
// procdata/<instance_id>/<model_name>/<pk>.
func EgressTopic(instanceID, modelName, pk string) string {
	return fmt.Sprintf("procdata/%s/%s/%s", instanceID, modelName, pk)
}
