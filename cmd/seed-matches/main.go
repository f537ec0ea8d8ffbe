// Command seed-matches generates a synthetic season of matches, submits them
// to a running service, triggers a calculation, and prints the rankings.
// Useful for local smoke testing:
//
//	go run ./cmd/seed-matches -url http://localhost:9080 -teams 24 -matches 300
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/fieldrank/fieldrank/internal/domain/model"
)

// Default configuration constants.
const (
	defaultTeams   = 16
	defaultMatches = 120
	defaultTopN    = 10
	defaultTimeout = 30 * time.Second
	batchSize      = 100
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		teams   = flag.Int("teams", defaultTeams, "Number of teams in the synthetic season")
		matches = flag.Int("matches", defaultMatches, "Number of matches to generate and submit")
		topN    = flag.Int("top", defaultTopN, "Number of top entries to print")
		period  = flag.String("period", time.Now().UTC().Format("2006-01-02"), "Calculation period (YYYY-MM-DD)")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := &http.Client{Timeout: *timeout}
	rng := rand.New(rand.NewSource(*seed))

	season := generateSeason(rng, *period, *teams, *matches)
	if err := submitMatches(ctx, client, *baseURL, season); err != nil {
		fail("submit matches: " + err.Error())
	}
	fmt.Printf("submitted %d matches for %d teams\n", len(season), *teams)

	outcome, err := runCalculation(ctx, client, *baseURL, *period)
	if err != nil {
		fail("run calculation: " + err.Error())
	}
	fmt.Printf("calculation %s ranked %v teams from %v matches\n",
		outcome["calculation_id"], outcome["total_teams"], outcome["total_matches"])

	if err := printRankings(ctx, client, *baseURL, *period, *topN); err != nil {
		fail("fetch rankings: " + err.Error())
	}
}

func fail(msg string) {
	os.Stderr.WriteString(msg + "\n")
	os.Exit(1)
}

// generateSeason builds random completed fixtures inside the season window of
// the period's year.
func generateSeason(rng *rand.Rand, period string, teams, count int) []model.Match {
	year := period[:4]
	start, _ := time.Parse("2006-01-02", year+"-08-01")

	out := make([]model.Match, 0, count)
	for i := 0; i < count; i++ {
		home := rng.Intn(teams)
		away := rng.Intn(teams - 1)
		if away >= home {
			away++
		}
		hs, as := rng.Intn(6), rng.Intn(6)
		date := start.AddDate(0, 0, rng.Intn(120)).Format("2006-01-02")
		out = append(out, model.Match{
			MatchID:   fmt.Sprintf("seed_%s_%05d", year, i),
			Date:      date,
			HomeTeam:  fmt.Sprintf("team-%03d", home),
			AwayTeam:  fmt.Sprintf("team-%03d", away),
			HomeScore: &hs,
			AwayScore: &as,
			Status:    model.MatchCompleted,
		})
	}
	return out
}

func submitMatches(ctx context.Context, client *http.Client, baseURL string, matches []model.Match) error {
	for from := 0; from < len(matches); from += batchSize {
		to := from + batchSize
		if to > len(matches) {
			to = len(matches)
		}
		body, err := json.Marshal(map[string]any{"matches": matches[from:to]})
		if err != nil {
			return err
		}
		if _, err := post(ctx, client, baseURL+"/matches", body); err != nil {
			return err
		}
	}
	return nil
}

func runCalculation(ctx context.Context, client *http.Client, baseURL, period string) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{"period": period, "force": true})
	if err != nil {
		return nil, err
	}
	return post(ctx, client, baseURL+"/calculations", body)
}

func printRankings(ctx context.Context, client *http.Client, baseURL, period string, topN int) error {
	url := fmt.Sprintf("%s/rankings?period=%s&limit=%d", baseURL, period, topN)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded struct {
		Rankings []model.RatingResult `json:"rankings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}

	fmt.Printf("%-5s %-10s %-8s %-5s %-7s\n", "Rank", "Team", "RPI", "W-L-T", "Games")
	for _, r := range decoded.Rankings {
		fmt.Printf("%-5d %-10s %-8.4f %d-%d-%d %7d\n",
			r.Rank, r.TeamID, r.RPI, r.Wins, r.Losses, r.Ties, r.TotalGames)
	}
	return nil
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return decoded, fmt.Errorf("%s: status %d: %v", url, resp.StatusCode, decoded["message"])
	}
	return decoded, nil
}
