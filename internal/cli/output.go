package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/detiam/DepotManifestGen/internal/steam"
)

// OutputMode selects how command results are rendered.
type OutputMode int

const (
	OutputHuman OutputMode = iota
	OutputJSON
	OutputQuiet
)

// Printer is the single output surface of every command: results go to
// stdout in the selected mode, diagnostics go through zerolog's console
// writer on stderr so they never pollute machine-readable output.
type Printer struct {
	Mode   OutputMode
	Writer io.Writer
	Logger zerolog.Logger
}

// NewPrinter builds a Printer from the global output flags. --json wins
// over --quiet.
func NewPrinter(jsonOut, quiet bool) *Printer {
	mode := OutputHuman
	switch {
	case jsonOut:
		mode = OutputJSON
	case quiet:
		mode = OutputQuiet
	}
	return &Printer{
		Mode:   mode,
		Writer: os.Stdout,
		Logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
	}
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Human writes one formatted result line; silent in quiet mode.
func (p *Printer) Human(format string, args ...any) {
	if p.Mode == OutputQuiet {
		return
	}
	fmt.Fprintf(p.Writer, format+"\n", args...)
}

// AppLine renders one owned app in info mode: an object in JSON mode,
// an `appid | TYPE | name` row otherwise.
func (p *Printer) AppLine(info steam.AppInfo) {
	if p.Mode == OutputJSON {
		_ = p.JSON(map[string]any{
			"app_id": info.AppID,
			"type":   info.Type,
			"name":   info.Name,
		})
		return
	}
	p.Human("%d | %s | %s", info.AppID, strings.ToUpper(info.Type), info.Name)
}

// Error reports a command failure on the diagnostic stream.
func (p *Printer) Error(err error, msg string) {
	p.Logger.Error().Err(err).Msg(msg)
}
