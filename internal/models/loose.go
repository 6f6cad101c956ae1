package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// LooseInt is a non-negative counter decoded leniently from import data.
// Numbers, numeric strings and floats are accepted; null, garbage and negative
// values decode to zero.
type LooseInt int64

func (n *LooseInt) UnmarshalJSON(b []byte) error {
	*n = LooseInt(parseLooseInt(b))
	return nil
}

func parseLooseInt(b []byte) int64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0
	}
	s := string(b)
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return 0
		}
		s = strings.TrimSpace(str)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return clampNonNegative(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return clampNonNegative(int64(f))
	}
	return 0
}

func clampNonNegative(i int64) int64 {
	if i < 0 {
		return 0
	}
	return i
}

// LooseBool is a flag decoded leniently: true, "true" and any number equal
// to 1 (1, 1.0, "1") are truthy.
type LooseBool bool

func (v *LooseBool) UnmarshalJSON(b []byte) error {
	*v = LooseBool(isTruthy(b))
	return nil
}

func isTruthy(b []byte) bool {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return false
	}
	s := string(b)
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return false
		}
		s = str
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "true" {
		return true
	}
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f == 1
}

// Int64 returns the counter value, never negative.
func (n LooseInt) Int64() int64 {
	return clampNonNegative(int64(n))
}

// Bool returns the flag value.
func (v LooseBool) Bool() bool {
	return bool(v)
}
