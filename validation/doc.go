// Package validation validates configuration structs.
//
// Struct tags are checked with go-playground/validator. Besides the built-in
// tags, "size" accepts human-readable byte sizes ("64KB") and "escaped"
// accepts non-empty strings with Go escape sequences ("\r\n"). Field names in
// messages follow the mapstructure tag, so errors name config keys.
//
//	type StreamConfig struct {
//	    HighWaterMark string `mapstructure:"high_water_mark" validate:"size"`
//	    Delimiter     string `mapstructure:"delimiter" validate:"escaped"`
//	}
//	err := validation.Validate(cfg)
//
// Relations between fields are checked programmatically:
//
//	v := validation.New()
//	v.Less("low_water_mark", low, "high_water_mark", high)
//	err := v.Merge("", validation.Validate(cfg)).Validate()
package validation
