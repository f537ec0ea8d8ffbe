package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldrank/fieldrank/pkg/logger"
)

// FSSink writes artifacts under a local directory, mirroring the object key
// layout. Used for local runs and tests.
type FSSink struct {
	root string
	log  logger.Logger
}

var _ Sink = (*FSSink)(nil)

// NewFSSink builds a sink rooted at dir.
func NewFSSink(dir string, log logger.Logger) *FSSink {
	return &FSSink{root: dir, log: log.Named("sink.fs")}
}

// Write stores both artifacts on disk.
func (s *FSSink) Write(ctx context.Context, rs ResultSet) ([]Artifact, error) {
	jsonBody, err := encodeJSONGzip(rs)
	if err != nil {
		return nil, err
	}
	csvBody, err := encodeCSV(rs)
	if err != nil {
		return nil, err
	}

	artifacts := []Artifact{
		{Key: jsonKey(rs.Period, rs.CalculationID), ContentType: "application/json", Size: len(jsonBody)},
		{Key: csvKey(rs.Period, rs.CalculationID), ContentType: "text/csv", Size: len(csvBody)},
	}
	bodies := [][]byte{jsonBody, csvBody}

	for i, a := range artifacts {
		path := filepath.Join(s.root, filepath.FromSlash(a.Key))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
		if err := os.WriteFile(path, bodies[i], 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", a.Key, err)
		}
		s.log.Debug(ctx, "wrote artifact",
			logger.String("path", path),
			logger.Int("size", a.Size))
	}
	return artifacts, nil
}
