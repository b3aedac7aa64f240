// Package ingest writes telemetry published by gateways over MQTT into the
// time-series store.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"farmiot/internal/metrics"
	"farmiot/internal/models"
	"farmiot/internal/service"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

var ErrNotASensorTopic = errors.New("not a sensor data topic")

// Keys of the payload that are not sensor fields.
const (
	keyDeviceID  = "device_id"
	keyLocation  = "location"
	keyTimestamp = "timestamp"
	keyMetadata  = "metadata"
	keyGatewayID = "gateway_id"
)

// MQTTMessage is the part of a paho message the ingestor reads.
type MQTTMessage interface {
	Topic() string
	Payload() []byte
}

// Ingestor turns sensors/{device_id}/data messages into points.
type Ingestor struct {
	Data    *service.DataService
	Topic   string
	Timeout time.Duration
}

// Start subscribes and handles messages until ctx is done.
func (i *Ingestor) Start(ctx context.Context, sub Subscriber) error {
	err := sub.Subscribe(i.Topic, func(_ mqtt.Client, msg mqtt.Message) {
		_ = i.HandleMessage(ctx, msg, time.Now())
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(i.Topic); err != nil {
			log.WithField("topic", i.Topic).Warnf("MQTT unsubscribe failed: %v", err)
		}
	}()
	return nil
}

// HandleMessage parses and stores one message. Malformed messages are
// logged and dropped; the error is returned for tests.
func (i *Ingestor) HandleMessage(ctx context.Context, msg MQTTMessage, receivedAt time.Time) error {
	reading, err := ParseReading(msg.Topic(), msg.Payload(), receivedAt)
	if err != nil {
		metrics.IngestedPoints.WithLabelValues("rejected").Inc()
		log.WithField("topic", msg.Topic()).Warnf("Dropping telemetry message: %v", err)
		return err
	}

	timeout := i.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := i.Data.ProcessAndSaveReading(writeCtx, reading); err != nil {
		metrics.IngestedPoints.WithLabelValues("failed").Inc()
		log.WithFields(log.Fields{
			"subsystem": models.SubsystemInfluxDB,
			"device_id": reading.DeviceID,
		}).Errorf("Failed to store telemetry: %v", err)
		return err
	}
	metrics.IngestedPoints.WithLabelValues("stored").Inc()
	return nil
}

// DeviceFromTopic extracts {device_id} from sensors/{device_id}/data.
func DeviceFromTopic(topic string) (string, error) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) != 3 || parts[2] != "data" {
		return "", ErrNotASensorTopic
	}
	if parts[1] == "" {
		return "", fmt.Errorf("%w: empty device id", ErrNotASensorTopic)
	}
	return parts[1], nil
}

// ParseReading decodes a gateway payload. Every top-level scalar other than
// device_id, location and timestamp becomes a field; metadata.gateway_id
// becomes a tag and other scalar metadata become fields.
func ParseReading(topic string, payload []byte, receivedAt time.Time) (models.SensorReading, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return models.SensorReading{}, fmt.Errorf("invalid json: %w", err)
	}

	deviceID, _ := raw[keyDeviceID].(string)
	if deviceID == "" {
		fromTopic, err := DeviceFromTopic(topic)
		if err != nil {
			return models.SensorReading{}, models.Validationf("device_id missing from payload and topic %q", topic)
		}
		deviceID = fromTopic
	}

	reading := models.SensorReading{
		DeviceID:  deviceID,
		Timestamp: receivedAt.UTC(),
		Fields:    make(map[string]models.FieldValue),
		Tags:      make(map[string]string),
	}
	if loc, ok := raw[keyLocation].(string); ok && loc != "" {
		reading.Tags[keyLocation] = loc
	}
	if ts, ok := parseTimestamp(raw[keyTimestamp]); ok {
		reading.Timestamp = ts
	}

	for k, v := range raw {
		switch k {
		case keyDeviceID, keyLocation, keyTimestamp:
			continue
		case keyMetadata:
			meta, ok := v.(map[string]any)
			if !ok {
				continue
			}
			for mk, mv := range meta {
				if mk == keyGatewayID {
					if gw, ok := mv.(string); ok && gw != "" {
						reading.Tags[keyGatewayID] = gw
					}
					continue
				}
				if isScalar(mv) {
					reading.Fields[mk] = models.FieldValueOf(mv)
				}
			}
		default:
			if isScalar(v) {
				reading.Fields[k] = models.FieldValueOf(v)
			}
		}
	}
	if len(reading.Fields) == 0 {
		return models.SensorReading{}, models.Validationf("payload for %s has no sensor fields", deviceID)
	}
	return reading, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case json.Number, string, bool:
		return true
	}
	return false
}

// parseTimestamp accepts unix seconds (integer or fractional) or RFC3339.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil || f <= 0 {
			return time.Time{}, false
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return ts.UTC(), true
	}
	return time.Time{}, false
}
