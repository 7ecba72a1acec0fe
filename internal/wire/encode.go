// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"encoding/json"
	"fmt"
)

// outEnvelope is the encoding-side {type, data} envelope. data is
// omitted entirely for kinds that carry none.
type outEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// MarshalFrame encodes a frame into the wire envelope. It is the
// inverse of ParseFrame and is used by the dev stub server and tests.
func MarshalFrame(f Frame) ([]byte, error) {
	switch f.Kind {
	case KindStart, KindEnd:
		return json.Marshal(outEnvelope{Type: string(f.Kind)})

	case KindDelta, KindFinal:
		// An empty delta still needs an explicit data field so the
		// decoder sees a string, not an absent payload.
		return json.Marshal(struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}{Type: string(f.Kind), Data: f.Text})

	case KindError:
		msg := f.ErrMessage
		if msg == "" {
			msg = "stream_error"
		}
		return json.Marshal(outEnvelope{Type: string(f.Kind), Data: errPayload{Message: msg}})

	case KindToolStart, KindToolEnd:
		return json.Marshal(outEnvelope{Type: string(f.Kind), Data: f.Raw})

	default:
		return nil, fmt.Errorf("cannot marshal unknown kind %q", f.Kind)
	}
}
