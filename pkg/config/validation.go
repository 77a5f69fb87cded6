package config

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidControlID    = errors.New("invalid control id")
	ErrInvalidOutputFormat = errors.New("invalid output format")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidLogFormat    = errors.New("invalid log format")
	ErrEmptyInput          = errors.New("input cannot be empty")
	ErrInputTooLong        = errors.New("input exceeds maximum length")
)

var (
	// Control IDs are lowercase and hyphenated; dots are allowed for
	// version-suffixed controls such as aks-version-1.32.
	controlIDRegex = regexp.MustCompile(`^[a-z0-9]+([.-][a-z0-9]+)*$`)

	validOutputFormats = map[string]bool{
		"console": true,
		"json":    true,
		"junit":   true,
	}

	validLogLevels = map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	validLogFormats = map[string]bool{
		"text": true,
		"json": true,
	}
)

const MaxControlIDLength = 128

func ValidateControlID(id string) error {
	if id == "" {
		return ErrEmptyInput
	}
	if len(id) > MaxControlIDLength {
		return ErrInputTooLong
	}
	if !controlIDRegex.MatchString(id) {
		return ErrInvalidControlID
	}
	return nil
}

func ValidateOutputFormat(format string) error {
	if format == "" {
		return ErrEmptyInput
	}
	if !validOutputFormats[strings.ToLower(format)] {
		return ErrInvalidOutputFormat
	}
	return nil
}

func ValidateLogLevel(level string) error {
	if level == "" {
		return ErrEmptyInput
	}
	if !validLogLevels[strings.ToLower(level)] {
		return ErrInvalidLogLevel
	}
	return nil
}

func ValidateLogFormat(format string) error {
	if format == "" {
		return ErrEmptyInput
	}
	if !validLogFormats[strings.ToLower(format)] {
		return ErrInvalidLogFormat
	}
	return nil
}
