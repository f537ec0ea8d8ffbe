package metadata_test

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fieldrank/fieldrank/internal/adapters/metadata"
	"github.com/fieldrank/fieldrank/internal/adapters/store"
	"github.com/fieldrank/fieldrank/internal/domain/model"
	"github.com/fieldrank/fieldrank/pkg/logger"
)

func TestStoreLookup(t *testing.T) {
	Convey("Given a store with one metadata record", t, func() {
		ctx := context.Background()
		mem := store.NewMem()
		defer func() { _ = mem.Close(ctx) }()

		seeded := model.TeamMetadata{
			Organization: "NCAA",
			Division:     "D1",
			Gender:       "M",
			Conference:   "Pac",
			City:         "Seattle",
			State:        "WA",
			Country:      "USA",
		}
		err := mem.Put(ctx, store.KindTeamMetadata, "team-a", map[string]any{
			"team_id":      "team-a",
			"organization": seeded.Organization,
			"division":     seeded.Division,
			"gender":       seeded.Gender,
			"conference":   seeded.Conference,
			"city":         seeded.City,
			"state":        seeded.State,
			"country":      seeded.Country,
		})
		So(err, ShouldBeNil)

		lookup := metadata.NewStoreLookup(mem, logger.Nop())

		Convey("When a seeded team is resolved", func() {
			md, ok := lookup.TeamMetadata(ctx, "team-a")

			Convey("Then the stored attributes come back", func() {
				So(ok, ShouldBeTrue)
				So(md, ShouldResemble, seeded)
			})

			Convey("And the second call is served from cache", func() {
				err := mem.Delete(ctx, store.Key{Kind: store.KindTeamMetadata, ID: "team-a"})
				So(err, ShouldBeNil)

				md, ok := lookup.TeamMetadata(ctx, "team-a")
				So(ok, ShouldBeTrue)
				So(md, ShouldResemble, seeded)
			})
		})

		Convey("When an unknown team is resolved", func() {
			_, ok := lookup.TeamMetadata(ctx, "team-x")

			Convey("Then it reports a miss", func() {
				So(ok, ShouldBeFalse)
			})

			Convey("And a row added later is picked up", func() {
				err := mem.Put(ctx, store.KindTeamMetadata, "team-x", map[string]any{
					"team_id":      "team-x",
					"organization": "MLS",
				})
				So(err, ShouldBeNil)

				md, ok := lookup.TeamMetadata(ctx, "team-x")
				So(ok, ShouldBeTrue)
				So(md.Organization, ShouldEqual, "MLS")
			})
		})
	})
}

func TestStaticLookup(t *testing.T) {
	Convey("Given a static lookup", t, func() {
		ctx := context.Background()
		fixed := metadata.Static{
			"team-a": {Organization: "NCAA", Division: "D2"},
		}

		Convey("Then known teams resolve and unknown teams miss", func() {
			md, ok := fixed.TeamMetadata(ctx, "team-a")
			So(ok, ShouldBeTrue)
			So(md.Division, ShouldEqual, "D2")

			_, ok = fixed.TeamMetadata(ctx, "team-b")
			So(ok, ShouldBeFalse)
		})
	})
}
