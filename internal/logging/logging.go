// Package logging builds the zap.Logger used throughout the conversion
// pipeline, matching the structured-logging ambient stack SPEC_FULL.md
// calls for in place of the teacher's unlogged library calls.
package logging

import "go.uber.org/zap"

// New returns a production-profile JSON logger, or a development-profile
// console logger with debug level enabled when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
