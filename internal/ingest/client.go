package ingest

import (
	"fmt"
	"net/url"
	"time"

	"farmiot/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Client is a thin wrapper over a paho connection.
type Client struct {
	cli mqtt.Client
}

// Subscriber is what the ingest worker needs from a broker connection.
type Subscriber interface {
	Subscribe(topic string, cb mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Connect dials brokerURL (tcp://, mqtt://, ssl:// or tls://, optionally
// with user:password@). clientID gets a random suffix so replicas do not
// kick each other off the broker.
func Connect(brokerURL, clientID string) (*Client, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mqtt broker url %q: %w", brokerURL, err)
	}
	server := "tcp://" + u.Host
	switch u.Scheme {
	case "ssl", "tls":
		server = "ssl://" + u.Host
	case "ws", "wss":
		server = u.Scheme + "://" + u.Host + u.Path
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(server)
	opts.SetClientID(clientID + "-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(c mqtt.Client) { log.WithField("broker", server).Info("MQTT connected") }
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.WithField("subsystem", models.SubsystemMQTT).Errorf("MQTT connection lost: %v", err)
	}
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}

	cli := mqtt.NewClient(opts)
	if t := cli.Connect(); t.Wait() && t.Error() != nil {
		return nil, models.Upstream(models.SubsystemMQTT, server, t.Error())
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Subscribe(topic string, cb mqtt.MessageHandler) error {
	t := c.cli.Subscribe(topic, 1, cb)
	if t.Wait() && t.Error() != nil {
		return models.Upstream(models.SubsystemMQTT, topic, t.Error())
	}
	log.WithField("topic", topic).Info("MQTT subscribed")
	return nil
}

func (c *Client) Unsubscribe(topic string) error {
	t := c.cli.Unsubscribe(topic)
	if t.Wait() && t.Error() != nil {
		return models.Upstream(models.SubsystemMQTT, topic, t.Error())
	}
	return nil
}

// Disconnect waits up to quiesce for in-flight work.
func (c *Client) Disconnect(quiesce time.Duration) {
	c.cli.Disconnect(uint(quiesce.Milliseconds()))
}
