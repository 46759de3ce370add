package config

import (
	"github.com/kbukum/bytepipe/framing"
	"github.com/kbukum/bytepipe/stream"
	"github.com/kbukum/bytepipe/util"
	"github.com/kbukum/bytepipe/validation"
)

var policyNames = []string{
	framing.PolicyEmit.String(),
	framing.PolicyRequireDelimiter.String(),
	"require_delimiter",
}

// StreamConfig configures pipeline stages. Sizes are human-readable ("64KB");
// delimiters accept Go escape sequences ("\n", "\r\n", "\x00").
type StreamConfig struct {
	HighWaterMark         string `yaml:"high_water_mark" mapstructure:"high_water_mark" validate:"size"`
	LowWaterMark          string `yaml:"low_water_mark" mapstructure:"low_water_mark" validate:"size"`
	ReadSize              string `yaml:"read_size" mapstructure:"read_size" validate:"size"`
	MaxRecordSize         string `yaml:"max_record_size" mapstructure:"max_record_size" validate:"size"`
	Delimiter             string `yaml:"delimiter" mapstructure:"delimiter" validate:"escaped"`
	OutputDelimiter       string `yaml:"output_delimiter" mapstructure:"output_delimiter" validate:"omitempty,escaped"`
	TrailingPartialPolicy string `yaml:"trailing_partial_policy" mapstructure:"trailing_partial_policy"`
	RateLimit             string `yaml:"rate_limit" mapstructure:"rate_limit" validate:"size"`
}

// ApplyDefaults fills unset fields.
func (c *StreamConfig) ApplyDefaults() {
	if c.HighWaterMark == "" {
		c.HighWaterMark = util.FormatSize(stream.DefaultHighWaterMark)
	}
	if c.LowWaterMark == "" {
		c.LowWaterMark = "0"
	}
	if c.ReadSize == "" {
		c.ReadSize = util.FormatSize(stream.DefaultReadSize)
	}
	if c.MaxRecordSize == "" {
		c.MaxRecordSize = "0"
	}
	if c.Delimiter == "" {
		c.Delimiter = `\n`
	}
	if c.TrailingPartialPolicy == "" {
		c.TrailingPartialPolicy = framing.PolicyEmit.String()
	}
	if c.RateLimit == "" {
		c.RateLimit = "0"
	}
}

// Validate checks field formats and that the low-water mark sits below the
// high-water mark.
func (c *StreamConfig) Validate() error {
	v := validation.New()
	v.Merge("stream", validation.Validate(c))
	v.OneOf("trailing_partial_policy", c.TrailingPartialPolicy, policyNames)
	if !v.HasErrors() {
		high := util.ParseSize(c.HighWaterMark, stream.DefaultHighWaterMark)
		low := util.ParseSize(c.LowWaterMark, 0)
		v.Min("high_water_mark", high, 1)
		if low > 0 {
			v.Less("low_water_mark", low, "high_water_mark", high)
		}
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// StageOptions converts the buffer settings into stream stage options.
func (c *StreamConfig) StageOptions() []stream.StageOption {
	return []stream.StageOption{
		stream.WithHighWaterMark(int(util.ParseSize(c.HighWaterMark, stream.DefaultHighWaterMark))),
		stream.WithLowWaterMark(int(util.ParseSize(c.LowWaterMark, 0))),
		stream.WithReadSize(int(util.ParseSize(c.ReadSize, stream.DefaultReadSize))),
	}
}

// Splitter builds a record splitter from the delimiter, policy and record
// size limit.
func (c *StreamConfig) Splitter() (*framing.Splitter, error) {
	delim, err := util.Unescape(c.Delimiter)
	if err != nil {
		return nil, err
	}
	policy, err := framing.ParsePolicy(c.TrailingPartialPolicy)
	if err != nil {
		return nil, err
	}
	return framing.New(delim,
		framing.WithPolicy(policy),
		framing.WithMaxRecordSize(int(util.ParseSize(c.MaxRecordSize, 0))),
	)
}

// OutputDelimiterBytes returns the delimiter that terminates emitted records.
// It defaults to the input delimiter.
func (c *StreamConfig) OutputDelimiterBytes() []byte {
	d := c.OutputDelimiter
	if d == "" {
		d = c.Delimiter
	}
	p, err := util.Unescape(d)
	if err != nil {
		return []byte("\n")
	}
	return p
}

// BytesPerSecond returns the throughput limit, 0 meaning unlimited.
func (c *StreamConfig) BytesPerSecond() int {
	return int(util.ParseSize(c.RateLimit, 0))
}
