package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "canonical upstream form",
			input: "{version=1.0, iv=AAA, encrypted=BBB}",
			want:  `{"version":1.0,"iv":"AAA","encrypted":"BBB"}`,
		},
		{
			name:  "integer version",
			input: "{version=1, iv=AAA, encrypted=BBB}",
			want:  `{"version":1,"iv":"AAA","encrypted":"BBB"}`,
		},
		{
			name:  "base64 padding kept after first equals",
			input: "{iv=AAAA==, encrypted=QkJC=, version=1.0}",
			want:  `{"iv":"AAAA==","encrypted":"QkJC=","version":1.0}`,
		},
		{
			name:  "non numeric version is quoted",
			input: "{version=v1, iv=AAA, encrypted=BBB}",
			want:  `{"version":"v1","iv":"AAA","encrypted":"BBB"}`,
		},
		{
			name:  "pair without equals dropped",
			input: "{version=1.0, junk, iv=AAA, encrypted=BBB}",
			want:  `{"version":1.0,"iv":"AAA","encrypted":"BBB"}`,
		},
		{
			name:  "whitespace around keys and values",
			input: "{  version = 1.0 ,iv= AAA,encrypted =BBB }",
			want:  `{"version":1.0,"iv":"AAA","encrypted":"BBB"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMalformed(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeMalformed_NoBraces(t *testing.T) {
	for _, s := range []string{"version=1.0", "{}", ""} {
		_, err := NormalizeMalformed(s)
		assert.Error(t, err, s)
	}
}

func TestParseLenient_MatchesWellFormed(t *testing.T) {
	malformed, err := ParseLenient("{version=1.0, iv=AAA, encrypted=BBB}")
	require.NoError(t, err)

	wellFormed, err := ParseLenient(`{"version":1.0,"iv":"AAA","encrypted":"BBB"}`)
	require.NoError(t, err)

	assert.Equal(t, wellFormed, malformed)
	assert.Equal(t, &Sealed{Encrypted: "BBB", IV: "AAA", Version: 1}, malformed)
}

func TestParseLenient_Errors(t *testing.T) {
	for _, s := range []string{
		"{version=1.0, iv=AAA}",
		"{version=abc}",
		"plain text",
	} {
		_, err := ParseLenient(s)
		assert.Error(t, err, s)
	}
}

func TestIsEncrypted(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		want  bool
	}{
		{"sealed", Field{Sealed: &Sealed{Encrypted: "a", IV: "b"}}, true},
		{"malformed string", Plain("{version=1.0, iv=AAA, encrypted=BBB}"), true},
		{"json string", Plain(`{"iv":"a","encrypted":"b"}`), true},
		{"plain", Plain("shopping list"), false},
		{"brace without members", Plain("{todo}"), false},
		{"members without brace", Plain("encrypted iv"), false},
		{"empty", Plain(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEncrypted(tt.field))
		})
	}
}
