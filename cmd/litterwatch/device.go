package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshp123/litterwatch/internal/litterbox"
	"github.com/joshp123/litterwatch/internal/tuya"
)

type tuyaClient interface {
	Status(ctx context.Context) (*tuya.Status, error)
	SetValue(ctx context.Context, index int, value any) error
}

// tuyaDevice adapts a tuya client to litterbox.Device.
type tuyaDevice struct {
	client tuyaClient
}

func (d tuyaDevice) Status(ctx context.Context) (*litterbox.RawStatus, error) {
	status, err := d.client.Status(ctx)
	if err != nil {
		return nil, deviceError(err)
	}
	if status == nil {
		return nil, nil
	}
	return &litterbox.RawStatus{DPS: status.DPS}, nil
}

func (d tuyaDevice) SetValue(ctx context.Context, field int, value any) error {
	return deviceError(d.client.SetValue(ctx, field, value))
}

func deviceError(err error) error {
	if err == nil {
		return nil
	}
	var reported *tuya.DeviceError
	if errors.As(err, &reported) {
		return fmt.Errorf("%w: %v", litterbox.ErrDeviceReported, err)
	}
	return err
}
