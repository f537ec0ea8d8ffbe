package rating_test

import (
	"context"
	"math"
	"testing"

	"github.com/fieldrank/fieldrank/internal/domain/model"
	"github.com/fieldrank/fieldrank/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func intPtr(n int) *int { return &n }

func completedMatch(id, home, away string, hs, as int) model.Match {
	return model.Match{
		MatchID:   id,
		Date:      "2025-10-04",
		HomeTeam:  home,
		AwayTeam:  away,
		HomeScore: intPtr(hs),
		AwayScore: intPtr(as),
		Status:    model.MatchCompleted,
	}
}

type staticLookup map[string]model.TeamMetadata

func (s staticLookup) TeamMetadata(_ context.Context, teamID string) (model.TeamMetadata, bool) {
	md, ok := s[teamID]
	return md, ok
}

func TestEngine_Compute(t *testing.T) {
	Convey("Given the documented two-match scenario", t, func() {
		engine := rating.NewEngine()
		matches := []model.Match{
			completedMatch("m1", "X", "Y", 2, 1),
			completedMatch("m2", "Y", "Z", 1, 0),
		}

		results, err := engine.Compute(context.Background(), matches)
		So(err, ShouldBeNil)
		So(results, ShouldHaveLength, 3)

		byTeam := make(map[string]model.RatingResult, len(results))
		for _, r := range results {
			byTeam[r.TeamID] = r
		}

		Convey("Then WP/OWP/OOWP match the hand-computed values", func() {
			So(byTeam["X"].WP, ShouldEqual, 1.0)
			So(byTeam["Y"].WP, ShouldEqual, 0.5)
			So(byTeam["Z"].WP, ShouldEqual, 0.0)

			So(byTeam["X"].OWP, ShouldEqual, 0.5)
			So(byTeam["Y"].OWP, ShouldEqual, 0.5)
			So(byTeam["Z"].OWP, ShouldEqual, 0.5)

			So(byTeam["X"].OOWP, ShouldEqual, 0.5)
			So(byTeam["Y"].OOWP, ShouldEqual, 0.5)
			So(byTeam["Z"].OOWP, ShouldEqual, 0.5)
		})

		Convey("Then RPI scores and ranks follow", func() {
			So(byTeam["X"].RPI, ShouldEqual, 0.625)
			So(byTeam["Y"].RPI, ShouldEqual, 0.5)
			So(byTeam["Z"].RPI, ShouldEqual, 0.375)

			So(results[0].TeamID, ShouldEqual, "X")
			So(results[1].TeamID, ShouldEqual, "Y")
			So(results[2].TeamID, ShouldEqual, "Z")
			So(results[0].Rank, ShouldEqual, 1)
			So(results[1].Rank, ShouldEqual, 2)
			So(results[2].Rank, ShouldEqual, 3)
		})

		Convey("Then every match contributes one game per side", func() {
			total := 0
			for _, r := range results {
				total += r.Wins + r.Losses + r.Ties
			}
			So(total, ShouldEqual, 2*len(matches))
		})

		Convey("And missing metadata is filled with the Unknown sentinel", func() {
			So(byTeam["X"].Metadata, ShouldResemble, model.UnknownMetadata())
		})
	})

	Convey("Given a tie game", t, func() {
		engine := rating.NewEngine()
		matches := []model.Match{completedMatch("m1", "A", "B", 1, 1)}

		results, err := engine.Compute(context.Background(), matches)
		So(err, ShouldBeNil)
		So(results, ShouldHaveLength, 2)

		Convey("Then both teams record the tie and WP is 0.5", func() {
			for _, r := range results {
				So(r.Ties, ShouldEqual, 1)
				So(r.Wins, ShouldEqual, 0)
				So(r.Losses, ShouldEqual, 0)
				So(r.WP, ShouldEqual, 0.5)
			}
		})

		Convey("And the stable tie-break keeps first-appearance order", func() {
			So(results[0].TeamID, ShouldEqual, "A")
			So(results[1].TeamID, ShouldEqual, "B")
		})
	})

	Convey("Given incomplete or malformed matches", t, func() {
		engine := rating.NewEngine()
		matches := []model.Match{
			{MatchID: "m1", HomeTeam: "A", AwayTeam: "B", Status: model.MatchScheduled},
			{MatchID: "m2", HomeTeam: "A", AwayTeam: "B", Status: model.MatchCompleted}, // no scores
			completedMatch("m3", "", "B", 1, 0),                                         // missing home id
		}

		Convey("Then no team records are synthesized", func() {
			results, err := engine.Compute(context.Background(), matches)
			So(err, ShouldBeNil)
			So(results, ShouldBeEmpty)
		})
	})

	Convey("Given an empty match set", t, func() {
		engine := rating.NewEngine()

		Convey("Then the result set is empty", func() {
			results, err := engine.Compute(context.Background(), nil)
			So(err, ShouldBeNil)
			So(results, ShouldBeEmpty)
		})
	})

	Convey("Given a repeated opponent", t, func() {
		engine := rating.NewEngine()
		// A beats B twice; B's WP must count once in A's OWP.
		matches := []model.Match{
			completedMatch("m1", "A", "B", 2, 0),
			completedMatch("m2", "B", "A", 0, 1),
		}

		results, err := engine.Compute(context.Background(), matches)
		So(err, ShouldBeNil)

		byTeam := make(map[string]model.RatingResult, len(results))
		for _, r := range results {
			byTeam[r.TeamID] = r
		}

		Convey("Then OWP(A) equals WP(B), not a doubled mean", func() {
			So(byTeam["A"].OWP, ShouldEqual, byTeam["B"].WP)
			So(byTeam["A"].OWP, ShouldEqual, 0.0)
		})
	})

	Convey("Given a larger random-ish season", t, func() {
		engine := rating.NewEngine()
		teams := []string{"t1", "t2", "t3", "t4", "t5", "t6"}
		var matches []model.Match
		n := 0
		for i := range teams {
			for j := i + 1; j < len(teams); j++ {
				n++
				matches = append(matches, completedMatch(
					"m"+teams[i]+teams[j], teams[i], teams[j], (i*7+j)%4, (j*5+i)%4,
				))
			}
		}

		results, err := engine.Compute(context.Background(), matches)
		So(err, ShouldBeNil)
		So(results, ShouldHaveLength, len(teams))

		Convey("Then structural invariants hold", func() {
			totalGames := 0
			for i, r := range results {
				So(r.Rank, ShouldEqual, i+1)
				So(r.WP, ShouldBeBetweenOrEqual, 0.0, 1.0)
				So(r.OWP, ShouldBeBetweenOrEqual, 0.0, 1.0)
				So(r.OOWP, ShouldBeBetweenOrEqual, 0.0, 1.0)
				So(r.RPI, ShouldBeBetweenOrEqual, 0.0, 1.0)

				want := math.Round((0.25*r.WP+0.50*r.OWP+0.25*r.OOWP)*1e4) / 1e4
				So(r.RPI, ShouldEqual, want)

				if i > 0 {
					So(results[i-1].RPI, ShouldBeGreaterThanOrEqualTo, r.RPI)
				}
				totalGames += r.Wins + r.Losses + r.Ties
			}
			So(totalGames, ShouldEqual, 2*len(matches))
		})
	})
}

func TestEngine_Options(t *testing.T) {
	Convey("Given an engine with an injected metadata lookup", t, func() {
		lookup := staticLookup{
			"A": {Organization: "NCAA", Division: "I", Gender: "M", Conference: "ACC", City: "Durham", State: "NC", Country: "USA"},
		}
		engine := rating.NewEngine(rating.WithMetadataLookup(lookup))

		results, err := engine.Compute(context.Background(), []model.Match{
			completedMatch("m1", "A", "B", 3, 1),
		})
		So(err, ShouldBeNil)

		byTeam := make(map[string]model.RatingResult, len(results))
		for _, r := range results {
			byTeam[r.TeamID] = r
		}

		Convey("Then known teams are annotated and unknown teams get the sentinel", func() {
			So(byTeam["A"].Metadata.Conference, ShouldEqual, "ACC")
			So(byTeam["B"].Metadata, ShouldResemble, model.UnknownMetadata())
		})
	})

	Convey("Given a progress callback with a short interval", t, func() {
		var checkpoints int
		engine := rating.NewEngine(
			rating.WithProgress(func(_, _ int) { checkpoints++ }),
			rating.WithProgressInterval(1),
		)

		_, err := engine.Compute(context.Background(), []model.Match{
			completedMatch("m1", "A", "B", 1, 0),
			completedMatch("m2", "B", "C", 2, 2),
		})
		So(err, ShouldBeNil)

		Convey("Then checkpoints fired during the run", func() {
			So(checkpoints, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given custom weights", t, func() {
		engine := rating.NewEngine(rating.WithWeights(1, 0, 0))

		results, err := engine.Compute(context.Background(), []model.Match{
			completedMatch("m1", "A", "B", 1, 0),
		})
		So(err, ShouldBeNil)

		Convey("Then the score reduces to WP", func() {
			for _, r := range results {
				So(r.RPI, ShouldEqual, math.Round(r.WP*1e4)/1e4)
			}
		})
	})
}
