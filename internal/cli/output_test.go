package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detiam/DepotManifestGen/internal/steam"
)

func TestPrinterAppLine(t *testing.T) {
	info := steam.AppInfo{AppID: 480, Name: "Spacewar", Type: "game"}

	var human bytes.Buffer
	p := &Printer{Mode: OutputHuman, Writer: &human}
	p.AppLine(info)
	assert.Equal(t, "480 | GAME | Spacewar\n", human.String())

	var out bytes.Buffer
	p = &Printer{Mode: OutputJSON, Writer: &out}
	p.AppLine(info)
	var row map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &row))
	assert.Equal(t, float64(480), row["app_id"])
	assert.Equal(t, "Spacewar", row["name"])

	var quiet bytes.Buffer
	p = &Printer{Mode: OutputQuiet, Writer: &quiet}
	p.AppLine(info)
	assert.Empty(t, quiet.String())
}

func TestNewPrinterModes(t *testing.T) {
	assert.Equal(t, OutputJSON, NewPrinter(true, true).Mode, "--json wins over --quiet")
	assert.Equal(t, OutputQuiet, NewPrinter(false, true).Mode)
	assert.Equal(t, OutputHuman, NewPrinter(false, false).Mode)
}
