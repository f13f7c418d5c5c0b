package cli

import (
	"github.com/spf13/cobra"

	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/rationale"
)

type evaluation struct {
	Mode      string          `json:"mode"`
	Commands  []model.Command `json:"commands"`
	Rationale string          `json:"rationale"`
	Template  bool            `json:"template"`
}

func newEvaluateCmd() *cobra.Command {
	var (
		mode, telemetryPath, templatePath string
		tuning                            engineFlags
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the composition rules on saved telemetry",
		Long: `Run the composition rules on a telemetry document and print the ranked
commands with the rationale shown to the user.

Examples:
  advise evaluate --mode landscape --telemetry frame.json
  advise evaluate -m portrait -t frame.json --template target.json -o yaml
  cat frame.json | advise evaluate -m action -t -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if telemetryPath == "-" && templatePath == "-" {
				return ErrStdinTwice
			}
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			t, err := readTelemetry(cmd, telemetryPath, m)
			if err != nil {
				return err
			}
			tmpl, err := readTemplate(cmd, templatePath, m)
			if err != nil {
				return err
			}

			engine, err := tuning.engine()
			if err != nil {
				return err
			}
			cmds, err := engine.Evaluate(t, m, tmpl)
			if err != nil {
				return err
			}
			return write(cmd, evaluation{
				Mode:      m.String(),
				Commands:  cmds,
				Rationale: rationale.Select(cmds, tmpl.ActiveFor(m), t.AIRationale),
				Template:  tmpl.ActiveFor(m),
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "shooting mode: landscape, portrait or action")
	cmd.Flags().StringVarP(&telemetryPath, "telemetry", "t", "", "telemetry document, - for stdin")
	cmd.Flags().StringVar(&templatePath, "template", "", "telemetry document to compare against")
	tuning.register(cmd)
	_ = cmd.MarkFlagRequired("mode")
	_ = cmd.MarkFlagRequired("telemetry")
	return cmd
}
