package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"face-attendance-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// publishTimeout begrenzt das Warten auf die Bestätigung des Brokers
const publishTimeout = 2 * time.Second

// Client ist der MQTT-Client für die Veröffentlichung der Erkennungen
type Client struct {
	config config.MQTTConfig
	client mqtt.Client

	mu          sync.RWMutex
	isConnected bool
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// Start startet den MQTT-Client und verbindet ihn mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	// Optionale Authentifizierung
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)

	// Automatische Wiederverbindung
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Status-Topic mit Last Will, damit Abonnenten einen Ausfall sehen
	opts.SetWill(c.Topic("status"), "offline", 1, true)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop beendet den MQTT-Client
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		if err := c.PublishMessage(c.Topic("status"), "offline", true); err != nil {
			log.Debugf("Could not publish offline status: %v", err)
		}
		c.client.Disconnect(250) // 250ms Wartezeit
		c.setConnected(false)
		log.Info("MQTT client disconnected")
	}
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Topic setzt das konfigurierte Präfix vor einen Topic-Pfad
func (c *Client) Topic(path string) string {
	if c.config.TopicPrefix == "" {
		return path
	}
	return c.config.TopicPrefix + "/" + path
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.isConnected = v
	c.mu.Unlock()
}

// onConnectHandler wird aufgerufen, wenn die Verbindung hergestellt wurde
func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)
	c.setConnected(true)
	if token := client.Publish(c.Topic("status"), 1, true, "online"); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.Warnf("Failed to publish online status: %v", token.Error())
	}
}

// connectionLostHandler wird aufgerufen, wenn die Verbindung verloren geht
func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
	c.setConnected(false)
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	payloadBytes, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := c.client.Publish(topic, 0, retain, payloadBytes)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	log.Debugf("Published MQTT message to topic: %s", topic)
	return nil
}

// encodePayload konvertiert die Payload in Bytes; Objekte werden als JSON
// serialisiert
func encodePayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return []byte(fmt.Sprintf("%v", p)), nil
	default:
		return json.Marshal(p)
	}
}
