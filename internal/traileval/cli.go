package traileval

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/trailvote/pkg/logger"
)

// SetupLogging initializes the global logger on stderr so reports written to
// stdout stay clean.
func SetupLogging(verbose bool) error {
	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logger.SetLevelString(level)
}

// ShowHelp prints usage information for the trail evaluation tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `trail-eval
==========

Evaluates a hypothetical vote against the configured trails and prints what
would be broadcast. Nothing is broadcast.

Trails and voters are read from the service configuration
(TRAILVOTE_CONFIG and TRAILVOTE_* environment variables).

Usage:
  go run ./cmd/trail-eval -voter alice -author bob -permlink my-post -weight 8000

Options:
  -voter string      account casting the vote
  -author string     content author
  -permlink string   content permlink
  -weight int        vote weight in hundredths of a percent (default 10000)
  -at string         vote time, RFC3339 (default now)
  -json              print the report as JSON
  -verbose           log each trail decision
  -help              show this help message
`)
}
