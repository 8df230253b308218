package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/okian/tally/internal/adapters/repository"
	"github.com/smartystreets/goconvey/convey"
)

func rawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", url.PathEscape(path)))
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	return db
}

func TestSQLiteStoreReconcile(t *testing.T) {
	convey.Convey("Given a sqlite store whose counters drifted from the events", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "tally.sqlite")
		store, err := repository.NewSQLiteStore(ctx, path)
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = store.Close() }()

		for _, id := range []string{"a", "b", "b", "c"} {
			_, err := store.RecordIncrement(ctx, id)
			convey.So(err, convey.ShouldBeNil)
		}

		db := rawDB(t, path)
		defer func() { _ = db.Close() }()
		_, err = db.ExecContext(ctx, `UPDATE totals SET total = 5 WHERE user_id = 'a'`)
		convey.So(err, convey.ShouldBeNil)
		_, err = db.ExecContext(ctx, `DELETE FROM totals WHERE user_id = 'c'`)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When audited", func() {
			diffs, err := store.Audit(ctx)

			convey.Convey("Then mismatches should come back in totals order", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(diffs, convey.ShouldResemble, []repository.Discrepancy{
					{UserID: "a", Total: 5, Events: 1},
					{UserID: "c", Total: 0, Events: 1},
				})
			})
		})

		convey.Convey("When reconciled", func() {
			n, err := store.Reconcile(ctx)

			convey.Convey("Then totals should equal event counts", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 2)
				totals := store.LoadAllTotals(ctx)
				convey.So(totals.Get("a"), convey.ShouldEqual, 1)
				convey.So(totals.Get("b"), convey.ShouldEqual, 2)
				convey.So(totals.Get("c"), convey.ShouldEqual, 1)

				diffs, err := store.Audit(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(diffs, convey.ShouldBeEmpty)
			})
		})
	})
}

func TestSQLiteStoreOpen(t *testing.T) {
	convey.Convey("Given an existing database file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "nested", "tally.sqlite")

		first, err := repository.NewSQLiteStore(ctx, path)
		convey.So(err, convey.ShouldBeNil)
		_, err = first.RecordIncrement(ctx, "u1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(first.Close(), convey.ShouldBeNil)

		convey.Convey("When it is opened again", func() {
			second, err := repository.NewSQLiteStore(ctx, path)
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = second.Close() }()

			convey.Convey("Then the schema step should be idempotent and data kept", func() {
				total, err := second.RecordIncrement(ctx, "u1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(total, convey.ShouldEqual, 2)
			})
		})
	})
}
