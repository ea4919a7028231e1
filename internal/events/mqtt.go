package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

const mqttTopicPrefix = "shiftledger"

// MQTTPublisher publishes events with QoS 1 to shiftledger/<entity>/<action>
type MQTTPublisher struct {
	client MQTT.Client
}

// NewMQTTPublisher connects to broker
func NewMQTTPublisher(broker string, clientID string, username string, password string) (*MQTTPublisher, error) {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(client MQTT.Client) {
		zap.S().Infof("connected to MQTT broker %s", broker)
	})
	opts.SetConnectionLostHandler(func(client MQTT.Client, err error) {
		zap.S().Warnf("connection lost to MQTT broker %s: %v", broker, err)
	})

	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTPublisher{client: client}, nil
}

// MQTTTopic returns the topic an event of type t is published to
func MQTTTopic(t datamodel.LedgerEventType) string {
	return mqttTopicPrefix + "/" + strings.Join(topicSuffix(t), "/")
}

func (p *MQTTPublisher) Publish(ctx context.Context, event datamodel.LedgerEvent) error {
	payload, err := encode(event)
	if err != nil {
		return err
	}
	token := p.client.Publish(MQTTTopic(event.Type), 1, false, payload)

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out publishing to %s", MQTTTopic(event.Type))
	}
	return token.Error()
}

func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
