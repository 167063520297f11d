package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Supported values for the --format flag.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// stdout is where command results are written. Logs go to stderr.
var stdout io.Writer = os.Stdout

// writeOutput renders v in the configured output format.
func writeOutput(w io.Writer, v any) error {
	switch format := viper.GetString("output.format"); format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML output: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
