package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/fieldrank/fieldrank/internal/domain/model"
	"github.com/fieldrank/fieldrank/pkg/logger"
)

func sampleResultSet() ResultSet {
	return ResultSet{
		CalculationID: "rpi_calc_20251004_153000_deadbeef",
		Period:        "2025-10-04",
		Timestamp:     "2025-10-04T15:30:00Z",
		TotalTeams:    2,
		TotalMatches:  3,
		Results: []model.RatingResult{
			{
				TeamID: "team-x", Rank: 1,
				RPI: 0.625, WP: 0.75, OWP: 0.5, OOWP: 0.625,
				Wins: 3, Losses: 1, Ties: 0, TotalGames: 4, WinPercentage: 0.75,
				Metadata: model.UnknownMetadata(),
			},
			{
				TeamID: "team-y", Rank: 2,
				RPI: 0.5, WP: 0.5, OWP: 0.5, OOWP: 0.5,
				Wins: 1, Losses: 1, Ties: 0, TotalGames: 2, WinPercentage: 0.5,
				Metadata: model.UnknownMetadata(),
			},
		},
	}
}

type fakeS3 struct {
	objects map[string]*s3.PutObjectInput
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.objects == nil {
		f.objects = make(map[string]*s3.PutObjectInput)
	}
	f.objects[*in.Key] = in
	return &s3.PutObjectOutput{}, nil
}

func TestEncoding(t *testing.T) {
	Convey("Given a result set", t, func() {
		rs := sampleResultSet()

		Convey("When encoded as gzip JSON", func() {
			body, err := encodeJSONGzip(rs)
			So(err, ShouldBeNil)

			Convey("Then it round-trips through gunzip", func() {
				gz, err := gzip.NewReader(bytes.NewReader(body))
				So(err, ShouldBeNil)
				raw, err := io.ReadAll(gz)
				So(err, ShouldBeNil)

				var decoded ResultSet
				So(json.Unmarshal(raw, &decoded), ShouldBeNil)
				So(decoded.CalculationID, ShouldEqual, rs.CalculationID)
				So(decoded.Results, ShouldHaveLength, 2)
				So(decoded.Results[0].TeamID, ShouldEqual, "team-x")
				So(decoded.Results[0].RPI, ShouldEqual, 0.625)
			})
		})

		Convey("When encoded as CSV", func() {
			body, err := encodeCSV(rs)
			So(err, ShouldBeNil)
			rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
			So(err, ShouldBeNil)

			Convey("Then the header matches the published contract", func() {
				So(rows[0], ShouldResemble, []string{
					"Rank", "Team", "RPI", "WP", "OWP", "OOWP",
					"Wins", "Losses", "Ties", "Total Games", "Win Percentage",
				})
			})

			Convey("Then rows carry fixed 4-decimal ratings", func() {
				So(rows, ShouldHaveLength, 3)
				So(rows[1], ShouldResemble, []string{
					"1", "team-x", "0.6250", "0.7500", "0.5000", "0.6250",
					"3", "1", "0", "4", "0.7500",
				})
			})
		})
	})
}

func TestS3Sink(t *testing.T) {
	Convey("Given an S3 sink over a fake client", t, func() {
		ctx := context.Background()
		fake := &fakeS3{}
		s := newS3Sink(fake, "fieldrank-results", logger.Nop())

		Convey("When a result set is written", func() {
			artifacts, err := s.Write(ctx, sampleResultSet())
			So(err, ShouldBeNil)

			Convey("Then both artifacts land under the period prefix", func() {
				So(artifacts, ShouldHaveLength, 2)
				So(artifacts[0].Key, ShouldEqual,
					"rpi_results/2025-10-04/rpi_results_rpi_calc_20251004_153000_deadbeef.json.gz")
				So(artifacts[1].Key, ShouldEqual,
					"rpi_results/2025-10-04/rpi_results_rpi_calc_20251004_153000_deadbeef.csv")
				So(fake.objects, ShouldHaveLength, 2)
			})

			Convey("Then uploads carry content type and run metadata", func() {
				obj := fake.objects[artifacts[0].Key]
				So(*obj.Bucket, ShouldEqual, "fieldrank-results")
				So(*obj.ContentType, ShouldEqual, "application/json")
				So(*obj.ContentEncoding, ShouldEqual, "gzip")
				So(obj.Metadata["calculation-id"], ShouldEqual, "rpi_calc_20251004_153000_deadbeef")
				So(obj.Metadata["period"], ShouldEqual, "2025-10-04")

				csvObj := fake.objects[artifacts[1].Key]
				So(*csvObj.ContentType, ShouldEqual, "text/csv")
				So(csvObj.ContentEncoding, ShouldBeNil)
			})
		})

		Convey("When the upload fails", func() {
			fake.err = fmt.Errorf("access denied")
			_, err := s.Write(ctx, sampleResultSet())

			Convey("Then the error is surfaced with the key", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "rpi_results/2025-10-04")
				So(err.Error(), ShouldContainSubstring, "access denied")
			})
		})
	})
}

func TestFSSink(t *testing.T) {
	Convey("Given a filesystem sink in a temp dir", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		s := NewFSSink(dir, logger.Nop())

		Convey("When a result set is written", func() {
			artifacts, err := s.Write(ctx, sampleResultSet())
			So(err, ShouldBeNil)

			Convey("Then files exist mirroring the key layout", func() {
				for _, a := range artifacts {
					info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(a.Key)))
					So(err, ShouldBeNil)
					So(int(info.Size()), ShouldEqual, a.Size)
				}
			})
		})
	})
}
