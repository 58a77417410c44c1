// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package log

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// Options configures the process logger
type Options struct {
	// Level is the minimum level: debug, info, warn or error
	Level string `toml:"level" mapstructure:"level"`

	// Format is console or json
	Format string `toml:"format" mapstructure:"format"`

	EnableColor   bool `toml:"enable-color" mapstructure:"enable-color"`
	DisableCaller bool `toml:"disable-caller" mapstructure:"disable-caller"`

	// OutputPaths defaults to stderr so log lines never mix with command output
	OutputPaths []string `toml:"output-paths" mapstructure:"output-paths"`
}

// NewOptions returns the defaults
func NewOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "console",
		EnableColor: true,
		OutputPaths: []string{"stderr"},
	}
}

// Validate reports every invalid option
func (o *Options) Validate() error {
	var errs []error

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(o.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if !slices.Contains([]string{"console", "json"}, o.Format) {
		errs = append(errs, fmt.Errorf("log.format: %q is not console or json", o.Format))
	}
	if len(o.OutputPaths) == 0 {
		errs = append(errs, errors.New("log.output-paths: at least one path is required"))
	}
	return errors.Join(errs...)
}

// AddFlags registers the log.* flags
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum log level (debug, info, warn, error)")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log format (console or json)")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Colorize console log levels")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit file:line from log entries")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Log destinations (stderr, stdout, or file paths)")
}
