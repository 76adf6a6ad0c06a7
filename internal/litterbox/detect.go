package litterbox

// PauseSentinel is the operation value reported when the box halted mid-clean.
const PauseSentinel = "Clean_Pause"

// NeedsReset reports whether the device is stuck in the paused-cleaning state.
// It reads the raw identifier-keyed status, not the mapped state.
func NeedsReset(status *RawStatus) bool {
	if status == nil || status.DPS == nil {
		return false
	}
	operation, ok := status.DPS[OperationField].(string)
	return ok && operation == PauseSentinel
}
