package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/framecoach/internal/domain/rules"
)

// engineFlags are the rule tuning flags shared by every command that runs
// the engine, so evaluate and overlay agree on the same inputs.
type engineFlags struct {
	maxCommands      int
	foregroundCutoff float64
	panningShutter   float64
}

func (f *engineFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.maxCommands, "max-commands", 0, fmt.Sprintf("cap on surfaced commands, 1 to %d (0 keeps the default)", rules.MaxSurfaced))
	fs.Float64Var(&f.foregroundCutoff, "foreground-cutoff", 0, "saliency above which the horizon goes high (0 keeps the default)")
	fs.Float64Var(&f.panningShutter, "panning-shutter", 0, "shutter in seconds above which panning is suggested (0 keeps the default)")
}

func (f *engineFlags) engine() (*rules.Engine, error) {
	if f.maxCommands < 0 || f.maxCommands > rules.MaxSurfaced {
		return nil, fmt.Errorf("%w: --max-commands must be between 1 and %d", ErrEngineFlag, rules.MaxSurfaced)
	}
	if f.foregroundCutoff < 0 || f.foregroundCutoff >= 1 {
		return nil, fmt.Errorf("%w: --foreground-cutoff must be in [0,1)", ErrEngineFlag)
	}
	if f.panningShutter < 0 {
		return nil, fmt.Errorf("%w: --panning-shutter must not be negative", ErrEngineFlag)
	}
	return rules.NewEngine(
		rules.WithMaxCommands(f.maxCommands),
		rules.WithForegroundCutoff(f.foregroundCutoff),
		rules.WithShutterThresholds(0, f.panningShutter, 0),
	), nil
}
