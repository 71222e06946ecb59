package grid

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// BatchHandler is called when a batch message is received.
// Parameters: sourceID, decoded batch, decode error
type BatchHandler func(sourceID string, batch *Batch, err error)

// MQTTClient manages the MQTT connection and batch subscriptions
type MQTTClient struct {
	client       mqtt.Client
	config       *Config
	batchHandler BatchHandler
	isConnected  bool
	mu           sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided configuration.
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this
// returns nil.
func InitMQTT(config *Config, handler BatchHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Sources) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no source configuration provided")
	}

	client := &MQTTClient{
		config:       config,
		batchHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "gridmerge"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep subscriptions across reconnects
	opts.SetOrderMatters(false) // batches are independent

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to every configured source topic
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("[MQTT] connected, subscribing to source topics...")
	c.setConnected(true)

	for _, src := range c.config.Sources {
		if src.Topic == "" {
			continue
		}

		log.Printf("[MQTT] subscribing to %s for source %s", src.Topic, src.ID)
		token := client.Subscribe(src.Topic, 1, c.createBatchHandler(src.ID))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] error subscribing to %s: %v", src.Topic, token.Error())
		}
	}
}

// onConnectionLost is called when the MQTT connection is lost.
// Auto-reconnect is enabled, so this is typically a transient event.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

// createBatchHandler decodes payloads arriving on one source's topic
func (c *MQTTClient) createBatchHandler(sourceID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("[MQTT] received batch for %s (topic: %s, size: %d bytes)",
			sourceID, msg.Topic(), len(payload))

		batch, err := DecodeBatch(payload)
		if err == nil && batch.Source == "" {
			batch.Source = sourceID
		}
		if err != nil {
			log.Printf("[MQTT] error decoding batch for %s: %v", sourceID, err)
		}
		if c.batchHandler != nil {
			c.batchHandler(sourceID, batch, err)
		}
	}
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

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetSourceByTopic returns the source ID for a given topic
func (c *MQTTClient) GetSourceByTopic(topic string) (string, bool) {
	return c.config.GetSourceByTopic(topic)
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient around a provided mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler BatchHandler) *MQTTClient {
	return &MQTTClient{
		client:       client,
		config:       config,
		batchHandler: handler,
	}
}
