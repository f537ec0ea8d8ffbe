package sink

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

var csvHeader = []string{
	"Rank", "Team", "RPI", "WP", "OWP", "OOWP",
	"Wins", "Losses", "Ties", "Total Games", "Win Percentage",
}

func encodeJSONGzip(rs ResultSet) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(rs); err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("flush gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeCSV(rs ResultSet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rs.Results {
		row := []string{
			strconv.Itoa(r.Rank),
			r.TeamID,
			formatRating(r.RPI),
			formatRating(r.WP),
			formatRating(r.OWP),
			formatRating(r.OOWP),
			strconv.Itoa(r.Wins),
			strconv.Itoa(r.Losses),
			strconv.Itoa(r.Ties),
			strconv.Itoa(r.TotalGames),
			formatRating(r.WinPercentage),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatRating(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
