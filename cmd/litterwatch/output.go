package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/joshp123/litterwatch/internal/litterbox"
)

type successOutput struct {
	DPS     litterbox.SemanticState `json:"dps"`
	Message string                  `json:"message"`
}

type errorOutput struct {
	Error string                  `json:"error"`
	Kind  litterbox.Kind          `json:"kind"`
	DPS   litterbox.SemanticState `json:"dps,omitempty"`
}

func newSuccessOutput(result litterbox.Result) successOutput {
	dps := result.State
	if dps == nil {
		dps = litterbox.SemanticState{}
	}
	return successOutput{DPS: dps, Message: result.Outcome.Message}
}

// newErrorOutput keeps the decoded state when the failure came after the
// status fetch, so a failed recovery still shows what the device reported.
func newErrorOutput(err error, result litterbox.Result) errorOutput {
	return errorOutput{
		Error: err.Error(),
		Kind:  litterbox.KindOf(err),
		DPS:   result.State,
	}
}

func printJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
