package litterbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// OutcomeKind is the result of the stuck-state decision.
type OutcomeKind int

const (
	NoActionNeeded OutcomeKind = iota
	RecoveryPerformed
	RecoveryFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case NoActionNeeded:
		return "no_action_needed"
	case RecoveryPerformed:
		return "recovery_performed"
	case RecoveryFailed:
		return "recovery_failed"
	default:
		return "unknown"
	}
}

const noActionMessage = "Device is working properly, no action needed."

type Outcome struct {
	Kind    OutcomeKind
	Message string
	Err     error
}

// Result describes one poll cycle. State is nil when the status fetch failed.
type Result struct {
	RunID     string
	DeviceID  string
	StartedAt time.Time
	Duration  time.Duration
	Raw       *RawStatus
	State     SemanticState
	Outcome   Outcome
}

// Stuck reports whether the cycle saw the paused-cleaning state.
func (r Result) Stuck() bool {
	return r.Outcome.Kind == RecoveryPerformed || r.Outcome.Kind == RecoveryFailed
}

// Orchestrator runs poll cycles against one device. It keeps no state
// between runs.
type Orchestrator struct {
	Device    Device
	DeviceID  string
	Sequencer Sequencer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Run fetches the status once, decides, and recovers the device if it is
// stuck. The returned error is a *Error for every failed cycle.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	result := Result{
		RunID:     uuid.NewString(),
		DeviceID:  o.DeviceID,
		StartedAt: now(),
	}
	logger = logger.With("run_id", result.RunID, "device_id", o.DeviceID)
	finish := func(err error) (Result, error) {
		result.Duration = now().Sub(result.StartedAt)
		return result, err
	}

	status, err := o.Device.Status(ctx)
	if err != nil {
		if errors.Is(err, ErrDeviceReported) {
			return finish(newError(KindDeviceReported, "failed to get device status: %w", err))
		}
		return finish(newError(KindDeviceUnreachable, "failed to get device status: %w", err))
	}
	if status == nil {
		return finish(newError(KindDeviceUnreachable, "failed to get device status: %w", ErrNoResponse))
	}

	result.Raw = status
	result.State = MapFields(status)
	logger.Debug("device status", "fields", len(result.State), "operation", result.State[FieldName(OperationField)])

	if !NeedsReset(status) {
		result.Outcome = Outcome{Kind: NoActionNeeded, Message: noActionMessage}
		logger.Debug("no action needed")
		return finish(nil)
	}

	logger.Info("device needs reset, sending recovery sequence")
	sequencer := o.Sequencer
	if sequencer.Logger == nil {
		sequencer.Logger = logger
	}
	message, err := sequencer.Recover(ctx, o.Device)
	if err != nil {
		runErr := newError(KindRecoveryFailed, "failed to control device: %w", err)
		result.Outcome = Outcome{Kind: RecoveryFailed, Err: runErr}
		return finish(runErr)
	}
	result.Outcome = Outcome{Kind: RecoveryPerformed, Message: message}
	logger.Info("recovery sequence sent")
	return finish(nil)
}
