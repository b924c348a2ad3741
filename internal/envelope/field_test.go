package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Field
	}{
		{"string", `"hello"`, Plain("hello")},
		{"null", `null`, Field{}},
		{"sealed", `{"encrypted":"x","iv":"y","version":1}`, Field{Sealed: &Sealed{Encrypted: "x", IV: "y", Version: 1}}},
		{"sealed float version", `{"encrypted":"x","iv":"y","version":1.0}`, Field{Sealed: &Sealed{Encrypted: "x", IV: "y", Version: 1}}},
		{"object without members", `{"foo":1}`, Plain(`{"foo":1}`)},
		{"number", `42`, Plain("42")},
		{"bool", `true`, Plain("true")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Field
			require.NoError(t, json.Unmarshal([]byte(tt.in), &f))
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestField_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Plain("text"))
	require.NoError(t, err)
	assert.JSONEq(t, `"text"`, string(b))

	b, err = json.Marshal(Field{Sealed: &Sealed{Encrypted: "x", IV: "y", Version: 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"encrypted":"x","iv":"y","version":1}`, string(b))
}

func TestField_Raw(t *testing.T) {
	assert.Equal(t, "plain", Plain("plain").Raw())
	assert.JSONEq(t, `{"encrypted":"x","iv":"y","version":1}`,
		Field{Sealed: &Sealed{Encrypted: "x", IV: "y", Version: 1}}.Raw())
}

func TestFromStored(t *testing.T) {
	tests := []struct {
		name       string
		stored     string
		wantSealed *Sealed
		wantText   string
	}{
		{"plain", "shopping list", nil, "shopping list"},
		{"empty", "", nil, ""},
		{"json object", `{"encrypted":"QQ==","iv":"Qg==","version":1}`, &Sealed{Encrypted: "QQ==", IV: "Qg==", Version: 1}, ""},
		{"malformed object", "{version=1.0, iv=Qg==, encrypted=QQ==}", &Sealed{Encrypted: "QQ==", IV: "Qg==", Version: 1}, ""},
		{"braces without pairs", "{encrypted iv}", nil, "{encrypted iv}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromStored(tt.stored)
			assert.Equal(t, tt.wantSealed, got.Sealed)
			assert.Equal(t, tt.wantText, got.Text)
		})
	}
}
