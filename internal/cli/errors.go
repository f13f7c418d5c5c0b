package cli

import "errors"

var (
	ErrOutputFormat = errors.New("unknown output format")
	ErrStdinTwice   = errors.New("only one of --telemetry and --template may read stdin")
	ErrEngineFlag   = errors.New("invalid rule flag")
)
