package model

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/lib/pq"
)

var (
	ErrUnknownVersion = errors.New("session: unknown state version")
	ErrCorruptState   = errors.New("session: corrupt state")
)

// Encode stamps the current version and serializes the state.
func Encode(s *State) ([]byte, error) {
	s.Version = StateVersion
	return sonic.Marshal(s)
}

// Decode reads a serialized state. Unknown versions are rejected, never guessed.
func Decode(raw []byte) (*State, error) {
	var head struct {
		Version int `json:"version"`
	}
	if err := sonic.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if head.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, head.Version)
	}

	var s State
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return &s, nil
}

// ToRow builds the table row for s.
func ToRow(s *State) (*SessionModel, error) {
	raw, err := Encode(s)
	if err != nil {
		return nil, err
	}
	return &SessionModel{
		SessionID:        s.ID,
		SessionVersion:   s.Version,
		SessionStep:      string(s.Step),
		SessionCompleted: s.Completed,
		SessionState:     raw,
		SessionFlags:     pq.StringArray(s.Flags.Names()),
	}, nil
}

// FromRow decodes the state held by a row.
func FromRow(m *SessionModel) (*State, error) {
	return Decode(m.SessionState)
}
