package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Sealed is the wire form of an encrypted field.
type Sealed struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	Version   int    `json:"version"`
}

// Field holds a sensitive value that is either plain text or sealed, never
// both. Sealed takes precedence when set.
type Field struct {
	Text   string
	Sealed *Sealed
}

func Plain(s string) Field {
	return Field{Text: s}
}

// Raw returns the field as it travels on the wire. Sealed fields are rendered
// as their JSON object.
func (f Field) Raw() string {
	if f.Sealed == nil {
		return f.Text
	}
	b, err := json.Marshal(f.Sealed)
	if err != nil {
		return ""
	}
	return string(b)
}

func (f Field) IsZero() bool {
	return f.Sealed == nil && f.Text == ""
}

func (f Field) MarshalJSON() ([]byte, error) {
	if f.Sealed != nil {
		return json.Marshal(f.Sealed)
	}
	return json.Marshal(f.Text)
}

// UnmarshalJSON accepts a string, an encrypted object, null, or any other
// scalar (kept as its literal text). Objects without both encrypted and iv
// members are kept verbatim as text.
func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = Field{}

	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '"':
		return json.Unmarshal(b, &f.Text)
	case b[0] == '{':
		sealed, err := decodeSealed(b)
		if err != nil {
			f.Text = string(b)
			return nil
		}
		f.Sealed = sealed
		return nil
	default:
		f.Text = string(b)
		return nil
	}
}

// decodeSealed parses a JSON object that must carry string encrypted and iv
// members. version is optional and may be any numeric literal (1 or 1.0).
func decodeSealed(b []byte) (*Sealed, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(b, &members); err != nil {
		return nil, err
	}

	rawEnc, okEnc := members["encrypted"]
	rawIV, okIV := members["iv"]
	if !okEnc || !okIV {
		return nil, fmt.Errorf("object is missing encrypted or iv")
	}

	var s Sealed
	if err := json.Unmarshal(rawEnc, &s.Encrypted); err != nil {
		return nil, fmt.Errorf("encrypted member: %w", err)
	}
	if err := json.Unmarshal(rawIV, &s.IV); err != nil {
		return nil, fmt.Errorf("iv member: %w", err)
	}

	if rawVersion, ok := members["version"]; ok && !bytes.Equal(rawVersion, []byte("null")) {
		var n json.Number
		if err := json.Unmarshal(rawVersion, &n); err != nil {
			return nil, fmt.Errorf("version member: %w", err)
		}
		v, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return nil, fmt.Errorf("version member: %w", err)
		}
		s.Version = int(v)
	}

	return &s, nil
}

// IsEncrypted reports whether f carries, or looks like it carries, an
// encrypted payload.
func IsEncrypted(f Field) bool {
	if f.Sealed != nil {
		return true
	}
	return looksSealed(f.Text)
}

func looksSealed(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") &&
		strings.Contains(s, "encrypted") &&
		strings.Contains(s, "iv")
}

// FromStored rebuilds a field from its at-rest string form, where sealed
// objects were stringified. Strings that look sealed but do not parse stay
// plain text.
func FromStored(s string) Field {
	if !looksSealed(s) {
		return Plain(s)
	}
	sealed, err := ParseLenient(s)
	if err != nil {
		return Plain(s)
	}
	return Field{Sealed: sealed}
}
