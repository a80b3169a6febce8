package convert

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
)

// OGRRunner converts files with the GDAL ogr2ogr CLI tool.
type OGRRunner struct {
	binPath string
}

// NewOGRRunner creates an OGRRunner. If binPath is empty, "ogr2ogr" is used.
func NewOGRRunner(binPath string) *OGRRunner {
	if binPath == "" {
		binPath = "ogr2ogr"
	}
	return &OGRRunner{binPath: binPath}
}

// Convert runs ogr2ogr -f <format> <dst> <src>.
func (o *OGRRunner) Convert(ctx context.Context, task model.ConversionTask) error {
	format := task.Format
	if format == "" {
		format = DefaultFormat
	}
	cmd := exec.CommandContext(ctx, o.binPath, "-f", format, task.Destination, task.Source)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "convert: ogr2ogr failed for %s: %s", task.Source, strings.TrimSpace(stderr.String()))
	}
	return nil
}
