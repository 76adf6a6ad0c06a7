package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/joshp123/litterwatch/internal/litterbox"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	publishQoS     = 1
)

type Config struct {
	Broker   string
	Topic    string
	Username string
	Password string
}

// Publisher sends run results to an MQTT broker as retained messages, so
// home automation sees the latest result on subscribe.
type Publisher struct {
	client mqtt.Client
	topic  string
}

func Dial(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID("litterwatch-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return &Publisher{client: client, topic: cfg.Topic}, nil
}

func (p *Publisher) Publish(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, publishQoS, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// Message is the published form of a run result.
type Message struct {
	RunID     string                  `json:"run_id"`
	DeviceID  string                  `json:"device_id"`
	Timestamp time.Time               `json:"timestamp"`
	Outcome   string                  `json:"outcome"`
	Stuck     bool                    `json:"stuck"`
	DPS       litterbox.SemanticState `json:"dps,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Error     string                  `json:"error,omitempty"`
	ErrorKind litterbox.Kind          `json:"error_kind,omitempty"`
}

func NewMessage(result litterbox.Result, err error) Message {
	msg := Message{
		RunID:     result.RunID,
		DeviceID:  result.DeviceID,
		Timestamp: result.StartedAt.UTC(),
		Outcome:   result.Outcome.Kind.String(),
		Stuck:     result.Stuck(),
		DPS:       result.State,
		Message:   result.Outcome.Message,
	}
	if err != nil {
		msg.Error = err.Error()
		msg.ErrorKind = litterbox.KindOf(err)
		if result.Raw == nil {
			msg.Outcome = "failed"
		}
	}
	return msg
}
