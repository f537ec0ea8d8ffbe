package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fieldrank/fieldrank/internal/adapters/http/api"
	"github.com/fieldrank/fieldrank/internal/adapters/store"
	service "github.com/fieldrank/fieldrank/internal/app"
	"github.com/fieldrank/fieldrank/internal/domain/model"
	"github.com/fieldrank/fieldrank/pkg/logger"
)

func intp(v int) *int { return &v }

func newTestServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMem()
	matches := []model.Match{
		{MatchID: "m1", Date: "2025-09-06", HomeTeam: "x", AwayTeam: "y",
			HomeScore: intp(2), AwayScore: intp(1), Status: model.MatchCompleted},
		{MatchID: "m2", Date: "2025-09-13", HomeTeam: "y", AwayTeam: "z",
			HomeScore: intp(1), AwayScore: intp(1), Status: model.MatchCompleted},
	}
	for _, m := range matches {
		if err := mem.Put(ctx, store.KindMatch, m.MatchID, m); err != nil {
			t.Fatalf("seed match: %v", err)
		}
	}

	svc := service.New(
		service.WithStore(mem),
		service.WithLogger(logger.Nop()),
	)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, svc
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestCalculationEndpoints(t *testing.T) {
	Convey("Given a running API server", t, func() {
		ts, _ := newTestServer(t)

		Convey("When POST /calculations runs a period", func() {
			resp, body := postJSON(t, ts.URL+"/calculations", `{"period":"2025-10-04"}`)

			Convey("Then it returns the outcome", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["period"], ShouldEqual, "2025-10-04")
				So(body["total_teams"], ShouldEqual, 3)
				So(body["calculation_id"], ShouldStartWith, "rpi_calc_")
			})

			Convey("And GET /calculations/{id} returns the run record", func() {
				id, _ := body["calculation_id"].(string)
				resp, run := getJSON(t, ts.URL+"/calculations/"+id)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(run["status"], ShouldEqual, "completed")
			})

			Convey("And GET /rankings serves the snapshot", func() {
				resp, rankingsBody := getJSON(t, ts.URL+"/rankings?period=2025-10-04&limit=2")
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(rankingsBody["count"], ShouldEqual, 2)
			})

			Convey("And GET /rankings/{team} serves one row", func() {
				resp, row := getJSON(t, ts.URL+"/rankings/x?period=2025-10-04")
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(row["rank"], ShouldEqual, 1)
				So(row["team"], ShouldEqual, "x")
			})
		})

		Convey("When the request body is malformed", func() {
			resp, body := postJSON(t, ts.URL+"/calculations", `{"period": 17}`)

			Convey("Then it returns 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(body["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When dates are not YYYY-MM-DD", func() {
			resp, _ := postJSON(t, ts.URL+"/calculations", `{"period":"10/04/2025"}`)

			Convey("Then it returns 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the window is inverted", func() {
			resp, _ := postJSON(t, ts.URL+"/calculations",
				`{"period":"2025-10-04","start_date":"2025-10-01","end_date":"2025-09-01"}`)

			Convey("Then it returns 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an unknown calculation is fetched", func() {
			resp, _ := getJSON(t, ts.URL+"/calculations/rpi_calc_nope")

			Convey("Then it returns 404", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestPipelineEndpoints(t *testing.T) {
	Convey("Given a running API server", t, func() {
		ts, _ := newTestServer(t)

		Convey("When POST /pipelines runs the saga", func() {
			resp, body := postJSON(t, ts.URL+"/pipelines", `{"period":"2025-10-04"}`)

			Convey("Then it completes and is queryable", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				sagaID, _ := body["saga_id"].(string)
				So(sagaID, ShouldNotBeEmpty)

				resp, sg := getJSON(t, ts.URL+"/pipelines/"+sagaID)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(sg["status"], ShouldEqual, "completed")
			})
		})

		Convey("When an unknown pipeline is fetched", func() {
			resp, _ := getJSON(t, ts.URL+"/pipelines/not-a-saga")

			Convey("Then it returns 404", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestReadEndpoints(t *testing.T) {
	Convey("Given a server with no calculations yet", t, func() {
		ts, _ := newTestServer(t)

		Convey("Then /rankings for an unknown period is 404", func() {
			resp, _ := getJSON(t, ts.URL+"/rankings?period=1999-01-01")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a bad limit is 400", func() {
			resp, _ := getJSON(t, ts.URL+"/rankings?period=2025-10-04&limit=zero")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then /healthz reports ok", func() {
			resp, body := getJSON(t, ts.URL+"/healthz")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "ok")
		})

		Convey("Then /stats serves service statistics", func() {
			resp, body := getJSON(t, ts.URL+"/stats?period=2025-10-04")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["started"], ShouldEqual, true)
		})

		Convey("When matches are ingested over HTTP", func() {
			resp, body := postJSON(t, ts.URL+"/matches", `{"matches":[
				{"match_id":"h1","date":"2025-09-21","home_team":"a","away_team":"b",
				 "home_score":2,"away_score":0,"status":"completed"}
			]}`)

			Convey("Then they count toward the next calculation", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["ingested"], ShouldEqual, 1)

				resp, outcome := postJSON(t, ts.URL+"/calculations", `{"period":"2025-10-04"}`)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(outcome["total_matches"], ShouldEqual, 3)
			})
		})

		Convey("When an ingested match is invalid", func() {
			resp, body := postJSON(t, ts.URL+"/matches", `{"matches":[
				{"match_id":"h2","date":"2025-09-21","home_team":"a","away_team":"a"}
			]}`)

			Convey("Then it returns 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(body["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("Then /metrics serves the Prometheus registry", func() {
			resp, err := http.Get(ts.URL + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}
