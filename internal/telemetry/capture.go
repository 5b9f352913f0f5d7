package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/beevik/ntp"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// Clock stamps samples whose payload carries no time_sec.
type Clock interface {
	Now() (time.Time, error)
}

type SystemClock struct{}

func (SystemClock) Now() (time.Time, error) {
	return time.Now(), nil
}

// NTPClock corrects the local clock with the offset reported by an NTP
// server. The offset is queried once, on first use.
type NTPClock struct {
	Server string

	once   sync.Once
	offset time.Duration
	err    error
}

func (c *NTPClock) Now() (time.Time, error) {
	c.once.Do(func() {
		resp, err := ntp.Query(c.Server)
		if err != nil {
			c.err = errors.Wrapf(err, "query ntp server %s", c.Server)
			return
		}
		if err := resp.Validate(); err != nil {
			c.err = errors.Wrapf(err, "validate ntp response from %s", c.Server)
			return
		}
		c.offset = resp.ClockOffset
	})
	if c.err != nil {
		return time.Time{}, c.err
	}
	return time.Now().Add(c.offset), nil
}

// ClientConfig holds MQTT connection settings.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect opens an MQTT connection with auto-reconnect enabled.
func Connect(cfg ClientConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("mqtt: connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "connect to mqtt broker %s", cfg.Broker)
	}
	return client, nil
}

// Subscriber is the part of mqtt.Client that Capture needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Capture records device samples published on an MQTT topic.
type Capture struct {
	Client Subscriber
	Topic  string
	QoS    byte
	Clock  Clock
	// Limit stops the capture after this many samples; 0 means run until
	// the context is cancelled.
	Limit int
}

// Run subscribes to the topic and collects samples until the context is done
// or Limit samples were received. Samples collected before cancellation are
// returned together with a nil error.
func (c *Capture) Run(ctx context.Context) ([]Sample, error) {
	if c.Client == nil {
		return nil, errors.New("capture requires an mqtt client")
	}
	if c.Topic == "" {
		return nil, errors.New("capture requires a topic")
	}
	clock := c.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	start, err := clock.Now()
	if err != nil {
		return nil, err
	}

	incoming := make(chan Sample, 64)
	done := make(chan struct{})
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		sample, err := ParseMessage(msg.Payload(), start, clock)
		if err != nil {
			log.Printf("capture: dropping message on %s: %v", msg.Topic(), err)
			return
		}
		select {
		case incoming <- sample:
		case <-ctx.Done():
		case <-done:
		}
	}

	if token := c.Client.Subscribe(c.Topic, c.QoS, handler); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "subscribe %s", c.Topic)
	}
	defer func() {
		if token := c.Client.Unsubscribe(c.Topic); token.Wait() && token.Error() != nil {
			log.Printf("capture: unsubscribe %s: %v", c.Topic, token.Error())
		}
	}()
	defer close(done)

	samples := make([]Sample, 0, 256)
	for {
		select {
		case <-ctx.Done():
			return samples, nil
		case sample := <-incoming:
			samples = append(samples, sample)
			if c.Limit > 0 && len(samples) >= c.Limit {
				return samples, nil
			}
		}
	}
}

// ParseMessage decodes one published device state. Payloads without time_sec
// are stamped with whole seconds elapsed since start according to clock.
func ParseMessage(payload []byte, start time.Time, clock Clock) (Sample, error) {
	var state deviceState
	if err := json.Unmarshal(payload, &state); err != nil {
		return Sample{}, errors.Wrap(err, "decode device state")
	}
	if state.ADC == nil {
		return Sample{}, ErrMissingADCState
	}
	sample := sampleFromState(state)
	if state.TimeSec == nil {
		if clock == nil {
			clock = SystemClock{}
		}
		now, err := clock.Now()
		if err != nil {
			return Sample{}, err
		}
		elapsed := now.Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		sample.TimestampSeconds = uint64(elapsed / time.Second)
	}
	return sample, nil
}
