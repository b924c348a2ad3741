package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// The storage script stringifies objects as "{version=1.0, iv=..., encrypted=...}".
// This file reads that form back. It is a compatibility shim only; nothing in
// this module writes it.

var numericVersion = regexp.MustCompile(`^\d+(\.\d+)?$`)

var errNoBraces = errors.New("no {...} span")

// ParseLenient parses a stringified encrypted field, accepting either proper
// JSON or the key=value form.
func ParseLenient(s string) (*Sealed, error) {
	s = strings.TrimSpace(s)

	if sealed, err := decodeSealed([]byte(s)); err == nil {
		return sealed, nil
	}

	fixed, err := NormalizeMalformed(s)
	if err != nil {
		return nil, err
	}

	sealed, err := decodeSealed([]byte(fixed))
	if err != nil {
		return nil, fmt.Errorf("parse normalized envelope: %w", err)
	}
	return sealed, nil
}

// NormalizeMalformed rewrites the first {k=v, ...} span of s as a JSON object.
// Keys are always quoted; values are quoted except a numeric version.
// Pairs without '=' are dropped.
func NormalizeMalformed(s string) (string, error) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", errNoBraces
	}
	end := strings.Index(s[start:], "}")
	if end <= 1 {
		return "", errNoBraces
	}
	interior := s[start+1 : start+end]

	var pairs []string
	for _, pair := range strings.Split(interior, ",") {
		pair = strings.TrimSpace(pair)
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		quotedKey, err := json.Marshal(key)
		if err != nil {
			return "", err
		}

		if key == "version" && numericVersion.MatchString(value) {
			pairs = append(pairs, fmt.Sprintf("%s:%s", quotedKey, value))
			continue
		}

		quotedValue, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		pairs = append(pairs, fmt.Sprintf("%s:%s", quotedKey, quotedValue))
	}

	return "{" + strings.Join(pairs, ",") + "}", nil
}
