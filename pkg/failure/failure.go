package failure

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates the three failure severities.
type Kind string

const (
	// KindBase is a generic typed failure.
	KindBase Kind = "Base"

	// KindDisconnected reports an unreachable peer.
	KindDisconnected Kind = "Disconnected"

	// KindTimeout reports a call that was not resolved in time.
	KindTimeout Kind = "Timeout"
)

// ParseKind maps a wire kind to a Kind, defaulting to KindBase.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindDisconnected:
		return KindDisconnected
	case KindTimeout:
		return KindTimeout
	default:
		return KindBase
	}
}

func (k Kind) String() string {
	return string(k)
}

// Sentinels usable with errors.Is. They match any *Error of the same kind.
var (
	ErrBase         = &Error{Kind: KindBase}
	ErrDisconnected = &Error{Kind: KindDisconnected}
	ErrTimeout      = &Error{Kind: KindTimeout}
)

// Error is a typed failure delivered through a call's refuse path.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// New creates a generic failure.
func New(message string, data any) *Error {
	return &Error{Kind: KindBase, Message: message, Data: data}
}

// Disconnected creates a peer unreachable failure.
func Disconnected(message string) *Error {
	return &Error{Kind: KindDisconnected, Message: message}
}

// Timeout creates a call timed out failure.
func Timeout(message string) *Error {
	return &Error{Kind: KindTimeout, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failure", e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is a kind sentinel (no message) of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Data == nil && t.Kind == e.Kind
}

// UnmarshalJSON decodes the wire triple, normalizing the kind.
func (e *Error) UnmarshalJSON(b []byte) error {
	var wire struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Data    any    `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	e.Kind = ParseKind(wire.Kind)
	e.Message = wire.Message
	e.Data = wire.Data
	return nil
}

// Map returns the wire triple as a generic map.
func (e *Error) Map() map[string]any {
	return map[string]any{
		"kind":    string(e.Kind),
		"message": e.Message,
		"data":    e.Data,
	}
}

// From rewraps a refuse payload. A recognized *Error passes through, a plain
// error becomes a generic failure with its message, and anything else becomes
// a generic failure carrying the payload as data.
func From(v any) *Error {
	switch val := v.(type) {
	case nil:
		return New("call refused", nil)
	case *Error:
		return val
	case error:
		var typed *Error
		if errors.As(val, &typed) {
			return typed
		}
		return New(val.Error(), nil)
	case string:
		return New(val, val)
	default:
		return New("call refused", val)
	}
}

// Decode turns a wire value back into a failure: an *Error, an Error value,
// or a map carrying the wire triple. Other values are rewrapped by From.
func Decode(v any) *Error {
	switch val := v.(type) {
	case *Error:
		return val
	case Error:
		return &val
	case map[string]any:
		kind, hasKind := val["kind"].(string)
		message, hasMessage := val["message"].(string)
		if !hasKind && !hasMessage {
			return From(val)
		}
		return &Error{Kind: ParseKind(kind), Message: message, Data: val["data"]}
	default:
		return From(v)
	}
}
