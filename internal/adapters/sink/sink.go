// Package sink persists finished calculation artifacts. Each run produces a
// gzip-compressed JSON document with the full result set and a flat CSV for
// spreadsheet consumers, stored under rpi_results/<period>/.
package sink

import (
	"context"
	"fmt"

	"github.com/fieldrank/fieldrank/internal/domain/model"
)

// Artifact identifies one stored object.
type Artifact struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// ResultSet is the JSON artifact payload.
type ResultSet struct {
	CalculationID string               `json:"calculation_id"`
	Period        string               `json:"period"`
	Timestamp     string               `json:"timestamp"`
	TotalTeams    int                  `json:"total_teams"`
	TotalMatches  int                  `json:"total_matches"`
	Results       []model.RatingResult `json:"results"`
}

// Sink writes both artifacts for a result set.
type Sink interface {
	Write(ctx context.Context, rs ResultSet) ([]Artifact, error)
}

func jsonKey(period, calculationID string) string {
	return fmt.Sprintf("rpi_results/%s/rpi_results_%s.json.gz", period, calculationID)
}

func csvKey(period, calculationID string) string {
	return fmt.Sprintf("rpi_results/%s/rpi_results_%s.csv", period, calculationID)
}
