// Package protocol defines the JSON messages exchanged between the
// livemirror server and connected browser clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// TypeFileChange is the only message type the server emits.
const TypeFileChange = "fileChange"

// Strategy tells clients which extra invalidation to perform after a
// change has been applied.
type Strategy string

const (
	// StrategyNone performs no extra invalidation.
	StrategyNone Strategy = ""

	// StrategyHashChange clears the cached page state and re-dispatches
	// a hash-change so host routing re-evaluates the current view.
	StrategyHashChange Strategy = "always-trigger-hashchange"
)

var (
	// ErrMalformed is returned when a message is not valid JSON.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownType is returned for well-formed messages of a type other
	// than TypeFileChange.
	ErrUnknownType = errors.New("unknown message type")
)

// ParseStrategy maps a configured strategy name to a Strategy. The empty
// string and "none" both disable extra invalidation.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.TrimSpace(s) {
	case "", "none":
		return StrategyNone, nil
	case string(StrategyHashChange):
		return StrategyHashChange, nil
	default:
		return StrategyNone, fmt.Errorf("invalid strategy %q: must be one of none, %s", s, StrategyHashChange)
	}
}

// Notification is the wire-level unit broadcast to clients.
type Notification struct {
	Type     string   `json:"type"`
	FilePath string   `json:"filePath"`
	Strategy Strategy `json:"strategy,omitempty"`
}

// NewFileChange builds a fileChange notification for a root-relative path.
func NewFileChange(relPath string, strategy Strategy) Notification {
	return Notification{
		Type:     TypeFileChange,
		FilePath: ToSlash(relPath),
		Strategy: strategy,
	}
}

// Encode serializes n to JSON.
func Encode(n Notification) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encoding notification: %w", err)
	}

	return data, nil
}

// Decode parses a raw message. Messages that are not JSON objects wrap
// ErrMalformed; messages of any other type wrap ErrUnknownType.
func Decode(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if n.Type != TypeFileChange {
		return n, fmt.Errorf("%w: %q", ErrUnknownType, n.Type)
	}

	return n, nil
}

// ToSlash converts an OS path into the forward-slash, root-relative form
// used on the wire. A leading "./" is dropped.
func ToSlash(p string) string {
	s := filepath.ToSlash(p)
	if s == "" {
		return s
	}

	s = path.Clean(s)

	return strings.TrimPrefix(s, "./")
}
