package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/framecoach/internal/domain/overlay"
)

type overlayOutput struct {
	Width      float64             `json:"width"`
	Height     float64             `json:"height"`
	Primitives []overlay.Primitive `json:"primitives"`
}

func newOverlayCmd() *cobra.Command {
	var (
		mode, telemetryPath, templatePath string
		width, height                     float64
		tuning                            engineFlags
	)
	cmd := &cobra.Command{
		Use:   "overlay",
		Short: "Render overlay primitives for saved telemetry",
		Long: `Project a telemetry document onto a preview of the given size and print
the drawable primitives.

Examples:
  advise overlay -m landscape -t frame.json --width 1080 --height 1920`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if telemetryPath == "-" && templatePath == "-" {
				return ErrStdinTwice
			}
			if width <= 0 || height <= 0 {
				return fmt.Errorf("--width and --height must be positive")
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
			p := overlay.NewProjector(overlay.WithEngine(engine))
			prims, err := p.Project(t, m, tmpl, width, height)
			if err != nil {
				return err
			}
			return write(cmd, overlayOutput{Width: width, Height: height, Primitives: prims})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "shooting mode: landscape, portrait or action")
	cmd.Flags().StringVarP(&telemetryPath, "telemetry", "t", "", "telemetry document, - for stdin")
	cmd.Flags().StringVar(&templatePath, "template", "", "telemetry document to compare against")
	cmd.Flags().Float64Var(&width, "width", 0, "preview width in pixels")
	cmd.Flags().Float64Var(&height, "height", 0, "preview height in pixels")
	tuning.register(cmd)
	for _, f := range []string{"mode", "telemetry", "width", "height"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
