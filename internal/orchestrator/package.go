package orchestrator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/opensourceways/sbom-tracer/internal/archive"
	"github.com/opensourceways/sbom-tracer/internal/logging"
	"github.com/opensourceways/sbom-tracer/internal/session"
)

// pack builds the two data archives and bundles them, with the session log
// when there is one, into the result archive.
func (o *Orchestrator) pack() (string, error) {
	if err := archive.TarGz(o.sess.TraceDataArchive(),
		archive.Entry{Path: o.sess.TraceDataDir(), Name: session.TraceDataDir}); err != nil {
		return "", fmt.Errorf("archiving trace data: %w", err)
	}
	if err := archive.TarGz(o.sess.DefinitionFileArchive(),
		archive.Entry{Path: o.sess.DefinitionFileDir(), Name: session.DefinitionFileDir}); err != nil {
		return "", fmt.Errorf("archiving definition files: %w", err)
	}

	entries := []archive.Entry{
		{Path: o.sess.TraceDataArchive(), Name: session.TraceDataDir + ".tar.gz"},
		{Path: o.sess.DefinitionFileArchive(), Name: session.DefinitionFileDir + ".tar.gz"},
	}
	if _, err := os.Stat(o.sess.LogFile()); err == nil {
		entries = append(entries, archive.Entry{Path: o.sess.LogFile(), Name: session.SessionLog})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking session log: %w", err)
	}

	result := o.sess.ResultArchive()
	if err := archive.TarGz(result, entries...); err != nil {
		return "", fmt.Errorf("archiving result: %w", err)
	}
	o.logger.Info("result archived", logging.Path(result))
	return result, nil
}
