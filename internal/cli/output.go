package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/telemetry"
)

// write renders v in the format selected by --output. YAML goes through
// JSON first so field names match the API.
func write(cmd *cobra.Command, v any) error {
	format, _ := cmd.Flags().GetString("output")
	out := cmd.OutOrStdout()
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrOutputFormat, format)
	}
}

// readTelemetry loads analyzer output from path, or stdin for "-".
func readTelemetry(cmd *cobra.Command, path string, mode telemetry.Mode) (telemetry.Telemetry, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return telemetry.Telemetry{}, fmt.Errorf("read telemetry: %w", err)
	}
	t, err := telemetry.Parse(raw, mode)
	if err != nil {
		return telemetry.Telemetry{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// readTemplate loads an optional template document. The template mode is
// the frame mode; a document for another mode fails to parse.
func readTemplate(cmd *cobra.Command, path string, mode telemetry.Mode) (*model.Template, error) {
	if path == "" {
		return nil, nil
	}
	t, err := readTelemetry(cmd, path, mode)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	return &model.Template{Name: model.DefaultTemplateName, Mode: mode, Telemetry: t}, nil
}

func parseMode(s string) (telemetry.Mode, error) {
	m, err := telemetry.ParseMode(s)
	if err != nil {
		return "", fmt.Errorf("--mode: %w", err)
	}
	return m, nil
}
