package batsoc

import (
	"context"
	"errors"
	"time"

	"batsoc/internal/telemetry"
)

type CaptureRequest struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      int
	// Limit stops after this many samples; Duration stops after this long.
	// With neither set the capture runs until ctx is cancelled.
	Limit     int
	Duration  time.Duration
	NTPServer string
	OutPath   string
}

type CaptureSummary struct {
	Samples int
	OutPath string
}

type connectFunc func(cfg telemetry.ClientConfig) (telemetry.Subscriber, func(), error)

func connectMQTT(cfg telemetry.ClientConfig) (telemetry.Subscriber, func(), error) {
	client, err := telemetry.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { client.Disconnect(250) }, nil
}

// Capture records device samples from MQTT and writes them as a telemetry
// log that Train and Evaluate can read.
func (c *Client) Capture(ctx context.Context, req CaptureRequest) (CaptureSummary, error) {
	if req.OutPath == "" {
		return CaptureSummary{}, errors.New("output path is required")
	}
	if req.QoS < 0 || req.QoS > 2 {
		return CaptureSummary{}, errors.New("qos must be 0, 1 or 2")
	}

	var clock telemetry.Clock = telemetry.SystemClock{}
	if req.NTPServer != "" {
		clock = &telemetry.NTPClock{Server: req.NTPServer}
	}

	subscriber, disconnect, err := c.connect(telemetry.ClientConfig{
		Broker:   req.Broker,
		ClientID: req.ClientID,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return CaptureSummary{}, err
	}
	defer disconnect()

	if req.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Duration)
		defer cancel()
	}

	capture := &telemetry.Capture{
		Client: subscriber,
		Topic:  req.Topic,
		QoS:    byte(req.QoS),
		Clock:  clock,
		Limit:  req.Limit,
	}
	samples, err := capture.Run(ctx)
	if err != nil {
		return CaptureSummary{}, err
	}
	if err := telemetry.SaveFile(req.OutPath, samples); err != nil {
		return CaptureSummary{}, err
	}
	return CaptureSummary{Samples: len(samples), OutPath: req.OutPath}, nil
}
