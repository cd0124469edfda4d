/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Seednode/yardbox/internal/telemetry"
)

const (
	mqttConnectTimeout = 30 * time.Second
	mqttPublishTimeout = 10 * time.Second
)

// DialMQTT connects to broker with automatic reconnects enabled.
func DialMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connection error: %w", err)
	}

	return client, nil
}

// MQTTSink mirrors events to a broker on the topic <prefix>/<code>/<table>.
type MQTTSink struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	metrics *telemetry.Metrics
}

func NewMQTTSink(client mqtt.Client, prefix string, metrics *telemetry.Metrics) *MQTTSink {
	return &MQTTSink{
		client:  client,
		prefix:  strings.Trim(prefix, "/"),
		timeout: mqttPublishTimeout,
		metrics: metrics,
	}
}

func (s *MQTTSink) Topic(ev Event) string {
	topic := ev.Code + "/" + string(ev.Table)
	if s.prefix == "" {
		return topic
	}
	return s.prefix + "/" + topic
}

func (s *MQTTSink) Publish(ev Event) error {
	err := s.publish(ev)
	s.metrics.Mirrored(err)
	return err
}

func (s *MQTTSink) publish(ev Event) error {
	if !s.client.IsConnected() {
		return fmt.Errorf("mqtt: not connected to broker")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("mqtt: encode event: %w", err)
	}

	token := s.client.Publish(s.Topic(ev), s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("mqtt: publish timeout")
	}
	return token.Error()
}

func (s *MQTTSink) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
