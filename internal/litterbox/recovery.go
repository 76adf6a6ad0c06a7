package litterbox

import (
	"context"
	"log/slog"
	"time"
)

// Device is the command interface of one litter box.
type Device interface {
	// Status returns the current report. A nil status with a nil error means
	// the device did not answer.
	Status(ctx context.Context) (*RawStatus, error)
	SetValue(ctx context.Context, field int, value any) error
}

// Step is one write of the recovery sequence followed by a settle time.
type Step struct {
	Name  string
	Field int
	Value any
	Wait  time.Duration
}

// RecoverySequence power-cycles the box and then triggers a clean. The waits
// let the device come back up before the next write; they must stay in place
// and in this order.
var RecoverySequence = []Step{
	{Name: "off", Field: 1, Value: false, Wait: 1 * time.Second},
	{Name: "on", Field: 1, Value: true, Wait: 2 * time.Second},
	{Name: "clean", Field: 9, Value: true},
}

const recoveryMessage = "Device stuck in '" + PauseSentinel + "' state, sending reset-clean commands consecutively."

// Sequencer issues RecoverySequence against a device.
type Sequencer struct {
	// Sleep blocks for the settle time between steps. Defaults to time.Sleep.
	Sleep  func(time.Duration)
	Logger *slog.Logger
}

// Recover runs every step in order and stops at the first failed write.
// Waits are not cut short by ctx.
func (s Sequencer) Recover(ctx context.Context, device Device) (string, error) {
	sleep := s.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for i, step := range RecoverySequence {
		if err := device.SetValue(ctx, step.Field, step.Value); err != nil {
			return "", &StepError{Step: i + 1, Field: step.Field, Value: step.Value, Err: err}
		}
		logger.Debug("recovery step sent", "step", step.Name, "field", step.Field, "value", step.Value)
		if step.Wait > 0 {
			logger.Debug("waiting before next step", "wait", step.Wait)
			sleep(step.Wait)
		}
	}
	return recoveryMessage, nil
}
