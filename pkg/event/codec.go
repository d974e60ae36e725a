// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import "encoding/json"

// wireEnvelope mirrors the seven fields that must be present with the
// correct primitive type before an envelope is considered valid.
type wireEnvelope struct {
	EventVersion   *string         `json:"eventVersion"`
	RunID          *string         `json:"runId"`
	EventID        *string         `json:"eventId"`
	Timestamp      *string         `json:"timestamp"`
	State          *string         `json:"state"`
	Actor          *string         `json:"actor"`
	Type           *string         `json:"type"`
	CorrelationID  *string         `json:"correlationId"`
	Payload        json.RawMessage `json:"payload"`
	RedactionLevel *string         `json:"redactionLevel"`
}

// FromJSON decodes raw into an Envelope, returning ErrInvalidEnvelope if
// eventVersion is not "v1" or any structural field is missing/mistyped.
func FromJSON(raw []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return Envelope{}, ErrInvalidEnvelope
	}
	if w.EventVersion == nil || *w.EventVersion != Version {
		return Envelope{}, ErrInvalidEnvelope
	}
	if w.RunID == nil || w.EventID == nil || w.Timestamp == nil ||
		w.State == nil || w.Actor == nil || w.Type == nil ||
		w.CorrelationID == nil || w.RedactionLevel == nil || w.Payload == nil {
		return Envelope{}, ErrInvalidEnvelope
	}

	var payload Payload
	if err := json.Unmarshal(w.Payload, &payload); err != nil {
		return Envelope{}, ErrInvalidEnvelope
	}

	env := Envelope{
		EventVersion:   *w.EventVersion,
		RunID:          *w.RunID,
		EventID:        *w.EventID,
		Timestamp:      *w.Timestamp,
		State:          *w.State,
		Actor:          Actor(*w.Actor),
		Type:           Type(*w.Type),
		CorrelationID:  *w.CorrelationID,
		Payload:        payload,
		RedactionLevel: RedactionLevel(*w.RedactionLevel),
	}
	return env, nil
}

// ToJSON serializes env to its canonical wire form.
func ToJSON(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Validate reports whether env has all seven structural fields non-empty
// and carries the expected schema version.
func Validate(env Envelope) bool {
	if env.EventVersion != Version {
		return false
	}
	return env.RunID != "" && env.EventID != "" && env.Timestamp != "" &&
		env.State != "" && env.Actor != "" && env.Type != "" &&
		env.CorrelationID != ""
}
