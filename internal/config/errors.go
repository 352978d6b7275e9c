package config

import "errors"

// Lookup failures. They are recoverable: a caller may treat any of them as
// "no value configured".
var (
	ErrUnknownSection = errors.New("unknown config section")
	ErrUnknownOption  = errors.New("unknown config option")
	ErrUnknownKey     = errors.New("unknown config key")
	ErrInvalidValue   = errors.New("invalid config value")
	ErrInvalidDefault = errors.New("invalid config default")
	ErrInvalidType    = errors.New("invalid config type tag")
)
