package homebus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// Config wires the bus client to a broker.
type Config struct {
	Broker          string
	Username        string
	PasswordFile    string
	TopicPrefix     string
	DiscoveryPrefix string
	QoS             byte
}

// Client publishes device state and discovery payloads to MQTT.
// State topics are retained so consumers see the last snapshot on
// subscribe; the availability topic carries an offline LWT.
type Client struct {
	cfg  Config
	conn mqtt.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "purehome"
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("purehome-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false).
		SetWill(cfg.TopicPrefix+"/availability", "offline", cfg.QoS, true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.PasswordFile != "" {
		password, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read mqtt password: %w", err)
		}
		opts.SetPassword(strings.TrimSpace(string(password)))
	}

	return &Client{cfg: cfg, conn: mqtt.NewClient(opts)}, nil
}

// Connect establishes the session and marks the bridge available.
func (c *Client) Connect() error {
	token := c.conn.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return c.publish(c.cfg.TopicPrefix+"/availability", []byte("online"), true)
}

// PublishState publishes one device's state document, retained.
func (c *Client) PublishState(pluginID, serial string, state any) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	topic := fmt.Sprintf("%s/%s/%s/state", c.cfg.TopicPrefix, pluginID, serial)
	return c.publish(topic, payload, true)
}

// PublishDiscovery announces an entity to Home Assistant.
func (c *Client) PublishDiscovery(entity DiscoveryEntity) error {
	payload, err := json.Marshal(entity.Config)
	if err != nil {
		return fmt.Errorf("marshal discovery: %w", err)
	}
	topic := fmt.Sprintf("%s/%s/%s/%s/config",
		c.cfg.DiscoveryPrefix, entity.Component, entity.NodeID, entity.ObjectID)
	return c.publish(topic, payload, true)
}

// AvailabilityTopic is referenced by discovery payloads.
func (c *Client) AvailabilityTopic() string {
	return c.cfg.TopicPrefix + "/availability"
}

// StateTopic returns the retained state topic for one device.
func (c *Client) StateTopic(pluginID, serial string) string {
	return fmt.Sprintf("%s/%s/%s/state", c.cfg.TopicPrefix, pluginID, serial)
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	token := c.conn.Publish(topic, c.cfg.QoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish timeout: %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close marks the bridge offline and drops the connection.
func (c *Client) Close() {
	if c.conn.IsConnected() {
		_ = c.publish(c.cfg.TopicPrefix+"/availability", []byte("offline"), true)
		c.conn.Disconnect(uint(publishTimeout.Milliseconds()))
	}
}
