package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Priority bounds: 0 means none, 3 is the highest
const (
	MinPriority = 0
	MaxPriority = 3
)

// ValidatePriority checks if priority is within the valid range
func ValidatePriority(priority int) error {
	if priority < MinPriority || priority > MaxPriority {
		return ErrInvalidPriority(priority)
	}
	return nil
}

// ParseDateFlag parses a date string in ISO format (YYYY-MM-DD).
// Returns nil for empty strings (used to clear dates).
func ParseDateFlag(dateStr string) (*time.Time, error) {
	if dateStr == "" {
		return nil, nil
	}

	parsedDate, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}

	return &parsedDate, nil
}

// ParseMinutesFlag parses a duration flag such as "45m" or "1h30m" into whole minutes.
// A bare number is read as minutes. Returns nil for empty strings.
func ParseMinutesFlag(value string) (*int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if minutes, err := strconv.Atoi(value); err == nil {
		if minutes < 0 {
			return nil, fmt.Errorf("duration must not be negative: %s", value)
		}
		return &minutes, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid duration '%s': expected minutes or a value like 1h30m", value)
	}
	if d < 0 {
		return nil, fmt.Errorf("duration must not be negative: %s", value)
	}
	minutes := int(d.Round(time.Minute) / time.Minute)
	return &minutes, nil
}
