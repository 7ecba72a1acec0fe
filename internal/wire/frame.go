// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// FRAME KINDS
// =============================================================================

// Kind identifies the type of a stream frame.
type Kind string

const (
	// KindStart signals the stream has opened; carries no content.
	KindStart Kind = "start"

	// KindDelta carries a text chunk to append to the in-progress reply.
	KindDelta Kind = "delta"

	// KindFinal carries the authoritative aggregated text. It replaces
	// (never appends to) whatever has been revealed so far.
	KindFinal Kind = "final"

	// KindEnd signals the producer is done emitting. A final frame may
	// still follow; end alone is also a valid terminal state.
	KindEnd Kind = "end"

	// KindError signals a terminal producer failure.
	KindError Kind = "error"

	// KindToolStart and KindToolEnd are informational pass-through frames
	// emitted while the producer runs tools. Not required for correctness.
	KindToolStart Kind = "tool_start"
	KindToolEnd   Kind = "tool_end"
)

// ErrMalformedFrame indicates a single event payload that could not be
// decoded. Callers log and skip the frame; the stream continues.
var ErrMalformedFrame = errors.New("malformed frame")

// =============================================================================
// FRAME TYPE
// =============================================================================

// Frame is one decoded wire event.
type Frame struct {
	Kind Kind

	// Text is set for delta and final frames.
	Text string

	// ErrMessage is set for error frames. Empty when the producer sent
	// no message; callers substitute a default.
	ErrMessage string

	// Raw is the original payload for tool_start/tool_end observability.
	Raw json.RawMessage
}

// Terminal reports whether this frame ends the stream on its own.
// end is terminal for the reveal loop but the transport may stay open
// in case a final follows, so it is not reported here.
func (f Frame) Terminal() bool {
	return f.Kind == KindFinal || f.Kind == KindError
}

// =============================================================================
// PARSING
// =============================================================================

// envelope matches the backend's {type, data} event payload. data is
// left raw because its shape depends on type.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// errPayload is the data shape of an error frame.
type errPayload struct {
	Message string `json:"message"`
}

// ParseFrame decodes one raw SSE event payload into a Frame.
// Invalid JSON, a missing type, or an unknown kind yield an error
// wrapping ErrMalformedFrame.
func ParseFrame(raw []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch Kind(env.Type) {
	case KindStart:
		return Frame{Kind: KindStart}, nil

	case KindDelta, KindFinal:
		var text string
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &text); err != nil {
				return Frame{}, fmt.Errorf("%w: %s data is not a string: %v", ErrMalformedFrame, env.Type, err)
			}
		}
		return Frame{Kind: Kind(env.Type), Text: text}, nil

	case KindEnd:
		return Frame{Kind: KindEnd}, nil

	case KindError:
		var p errPayload
		if len(env.Data) > 0 {
			// A malformed error payload still surfaces as an error frame
			// with the default message; losing the stream over it would
			// be worse than losing the message text.
			_ = json.Unmarshal(env.Data, &p)
		}
		return Frame{Kind: KindError, ErrMessage: p.Message}, nil

	case KindToolStart, KindToolEnd:
		return Frame{Kind: Kind(env.Type), Raw: env.Data}, nil

	case "":
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)

	default:
		return Frame{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedFrame, env.Type)
	}
}
