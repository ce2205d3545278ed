package spt

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ExcludeHandler is called with the track ids named by an exclusion command
type ExcludeHandler func(ids []int)

// MQTTClient manages the broker connection and the exclusion command topic
type MQTTClient struct {
	client        mqtt.Client
	publishPrefix string
	handler       ExcludeHandler
	isConnected   bool
	mu            sync.RWMutex
}

// InitMQTT connects to the broker named by MQTT_BROKER or the config. When no
// broker is configured MQTT is disabled and (nil, nil) is returned.
func InitMQTT(cfg *MQTTConfig, handler ExcludeHandler) (*MQTTClient, error) {
	if cfg == nil {
		cfg = &MQTTConfig{}
	}

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = cfg.Broker
	}
	if broker == "" {
		Logf("[mqtt] disabled: MQTT_BROKER not set")
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = cfg.ClientID
	}
	if clientID == "" {
		clientID = "sptrack"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = cfg.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = cfg.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	c := &MQTTClient{
		publishPrefix: NewPublisher(nil, cfg).Prefix(),
		handler:       handler,
	}
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		Logf("[mqtt] connection to %s pending, retrying in background", broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", broker, err)
	}
	return c, nil
}

// newMQTTClientWithMock wraps an existing client, used with MockClient in tests
func newMQTTClientWithMock(client mqtt.Client, prefix string, handler ExcludeHandler) *MQTTClient {
	return &MQTTClient{
		client:        client,
		publishPrefix: prefix,
		handler:       handler,
	}
}

// ExcludeTopic returns the command topic for track exclusion
func (c *MQTTClient) ExcludeTopic() string {
	return c.publishPrefix + "/exclude"
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	if c.handler == nil {
		return
	}
	topic := c.ExcludeTopic()
	token := client.Subscribe(topic, 1, c.handleExclude)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		Logf("[mqtt] error subscribing to %s: %v", topic, token.Error())
		return
	}
	Logf("[mqtt] subscribed to %s", topic)
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	Logf("[mqtt] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) handleExclude(client mqtt.Client, msg mqtt.Message) {
	ids, err := ParseExcludePayload(msg.Payload())
	if err != nil {
		Logf("[mqtt] ignoring exclude command on %s: %v", msg.Topic(), err)
		return
	}
	Logf("[mqtt] exclude command for tracks %v", ids)
	c.handler(ids)
}

// ParseExcludePayload accepts {"tracks":[1,2]}, a JSON array [1,2] or a plain
// list "1,2 3". The ids are returned sorted without duplicates.
func ParseExcludePayload(payload []byte) ([]int, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return nil, fmt.Errorf("empty payload")
	}

	var ids []int
	switch text[0] {
	case '{':
		var cmd struct {
			Tracks []int `json:"tracks"`
		}
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return nil, fmt.Errorf("parsing command: %w", err)
		}
		ids = cmd.Tracks
	case '[':
		if err := json.Unmarshal(payload, &ids); err != nil {
			return nil, fmt.Errorf("parsing track list: %w", err)
		}
	default:
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
		})
		for _, f := range fields {
			id, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("invalid track id %q", f)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no track ids in payload")
	}

	sort.Ints(ids)
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out, nil
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		Logf("[mqtt] disconnecting")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}
