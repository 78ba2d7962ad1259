package config

import (
	"encoding/json"
	"fmt"
	"time"
)

const redacted = "[REDACTED]"

// Duration is a time.Duration that unmarshals from Go duration strings
// such as "30s" or "2h", so timeouts can be written naturally in YAML
// files and environment variables.
type Duration time.Duration

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// UnmarshalText parses a Go duration string. Negative durations are
// rejected: every Duration in the config is a timeout or an interval.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration back in the same string form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON renders the duration as a JSON string, matching the
// text form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Secret holds a credential that must never leak through logging or
// serialization. Every rendering path (fmt verbs, JSON, text) emits a
// placeholder; only Value returns the real string, at the call sites
// that actually hand the credential to a provider.
type Secret string

// Value returns the real credential.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool { return s != "" }

// String satisfies fmt.Stringer with the placeholder, or "" when the
// secret is unset so empty values don't look populated.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString keeps %#v from bypassing the redaction.
func (s Secret) GoString() string {
	return "Secret(" + redacted + ")"
}

// MarshalJSON emits the placeholder, never the credential.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal(redacted)
}

// MarshalText emits the placeholder, never the credential.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte(redacted), nil
}
