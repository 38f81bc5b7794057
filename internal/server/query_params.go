package server

import (
	"strconv"
	"strings"
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// queryInt returns 0 for an absent parameter.
func queryInt(value string) (int, error) {
	parsed, err := parseOptionalInt(value)
	if err != nil || parsed == nil {
		return 0, err
	}
	return *parsed, nil
}
