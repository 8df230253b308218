package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// steppingClock returns epoch, epoch+1m, epoch+2m, ...
func steppingClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return epoch.Add(time.Duration(n.Add(1)-1) * time.Minute)
	}
}

type backend struct {
	name string
	open func(t *testing.T, dir string, opts ...repository.Option) repository.Store
}

func backends() []backend {
	return []backend{
		{
			name: "file",
			open: func(t *testing.T, dir string, opts ...repository.Option) repository.Store {
				s, err := repository.NewFileStore(dir, opts...)
				if err != nil {
					t.Fatalf("open file store: %v", err)
				}
				return s
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T, dir string, opts ...repository.Option) repository.Store {
				s, err := repository.NewSQLiteStore(context.Background(), filepath.Join(dir, "tally.sqlite"), opts...)
				if err != nil {
					t.Fatalf("open sqlite store: %v", err)
				}
				return s
			},
		},
	}
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends() {
		convey.Convey(fmt.Sprintf("Given an empty %s store", b.name), t, func() {
			ctx := context.Background()
			dir := t.TempDir()
			store := b.open(t, dir, repository.WithClock(steppingClock()))
			defer func() { _ = store.Close() }()

			convey.Convey("Then reads of unknown users should be empty", func() {
				convey.So(store.LoadEvents(ctx, "ghost"), convey.ShouldBeEmpty)
				convey.So(store.LoadAllTotals(ctx).Len(), convey.ShouldEqual, 0)
				convey.So(store.CountInWindow(ctx, "ghost", 0, 1<<62), convey.ShouldEqual, 0)
			})

			convey.Convey("When a user increments N times", func() {
				const n = 7
				var last int
				for i := 0; i < n; i++ {
					total, err := store.RecordIncrement(ctx, "u1")
					convey.So(err, convey.ShouldBeNil)
					convey.So(total, convey.ShouldEqual, i+1)
					last = total
				}

				convey.Convey("Then the total and the log length should both be N", func() {
					convey.So(last, convey.ShouldEqual, n)
					convey.So(store.LoadAllTotals(ctx).Get("u1"), convey.ShouldEqual, n)
					convey.So(store.LoadEvents(ctx, "u1"), convey.ShouldHaveLength, n)
				})

				convey.Convey("Then events should be stamped by the clock in append order", func() {
					events := store.LoadEvents(ctx, "u1")
					convey.So(events[0].Timestamp, convey.ShouldEqual, epoch.UnixMilli())
					convey.So(events[n-1].Timestamp, convey.ShouldEqual, epoch.Add((n-1)*time.Minute).UnixMilli())
				})

				convey.Convey("Then the audit should be clean", func() {
					diffs, err := store.Audit(ctx)
					convey.So(err, convey.ShouldBeNil)
					convey.So(diffs, convey.ShouldBeEmpty)
				})
			})

			convey.Convey("When several users increment", func() {
				for _, id := range []string{"u3", "u1", "u2", "u1"} {
					_, err := store.RecordIncrement(ctx, id)
					convey.So(err, convey.ShouldBeNil)
				}

				convey.Convey("Then totals should iterate in first-insertion order", func() {
					totals := store.LoadAllTotals(ctx)
					convey.So(totals.Users(), convey.ShouldResemble, []string{"u3", "u1", "u2"})
					convey.So(totals.Get("u1"), convey.ShouldEqual, 2)
				})

				convey.Convey("Then a fresh store on the same data should agree", func() {
					_ = store.Close()
					reopened := b.open(t, dir)
					defer func() { _ = reopened.Close() }()
					convey.So(reopened.LoadAllTotals(ctx).Users(), convey.ShouldResemble, []string{"u3", "u1", "u2"})
					convey.So(reopened.LoadEvents(ctx, "u1"), convey.ShouldHaveLength, 2)
				})
			})

			convey.Convey("When counting within windows", func() {
				for i := 0; i < 5; i++ {
					_, err := store.RecordIncrement(ctx, "u1")
					convey.So(err, convey.ShouldBeNil)
				}
				at := func(minutes int) int64 { return epoch.Add(time.Duration(minutes) * time.Minute).UnixMilli() }

				convey.Convey("Then both bounds should be inclusive", func() {
					convey.So(store.CountInWindow(ctx, "u1", at(1), at(3)), convey.ShouldEqual, 3)
					convey.So(store.CountInWindow(ctx, "u1", at(0), at(0)), convey.ShouldEqual, 1)
					convey.So(store.CountInWindow(ctx, "u1", at(5), at(9)), convey.ShouldEqual, 0)
				})

				convey.Convey("Then widening either bound should never decrease the count", func() {
					prev := 0
					for start := 4; start >= 0; start-- {
						c := store.CountInWindow(ctx, "u1", at(start), at(4))
						convey.So(c, convey.ShouldBeGreaterThanOrEqualTo, prev)
						prev = c
					}
					prev = 0
					for end := 0; end <= 4; end++ {
						c := store.CountInWindow(ctx, "u1", at(0), at(end))
						convey.So(c, convey.ShouldBeGreaterThanOrEqualTo, prev)
						prev = c
					}
					convey.So(prev, convey.ShouldEqual, 5)
				})
			})

			convey.Convey("When the user id is invalid", func() {
				_, err := store.RecordIncrement(ctx, "../escape")

				convey.Convey("Then the increment should be rejected", func() {
					convey.So(errors.Is(err, model.ErrInvalidUserID), convey.ShouldBeTrue)
					convey.So(store.LoadAllTotals(ctx).Len(), convey.ShouldEqual, 0)
				})
			})

			convey.Convey("When the context is already cancelled", func() {
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := store.RecordIncrement(cctx, "u1")

				convey.Convey("Then nothing should be written", func() {
					convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
					convey.So(store.LoadEvents(ctx, "u1"), convey.ShouldBeEmpty)
				})
			})

			convey.Convey("When the store is closed", func() {
				convey.So(store.Close(), convey.ShouldBeNil)
				_, err := store.RecordIncrement(ctx, "u1")

				convey.Convey("Then increments should fail with ErrClosed", func() {
					convey.So(errors.Is(err, repository.ErrClosed), convey.ShouldBeTrue)
				})
			})
		})
	}
}

func TestStoreConcurrentIncrements(t *testing.T) {
	for _, b := range backends() {
		convey.Convey(fmt.Sprintf("Given a %s store under concurrent increments", b.name), t, func() {
			ctx := context.Background()
			store := b.open(t, t.TempDir())
			defer func() { _ = store.Close() }()

			const (
				users   = 4
				perUser = 15
			)
			var wg sync.WaitGroup
			for u := 0; u < users; u++ {
				for i := 0; i < perUser; i++ {
					wg.Add(1)
					go func(id string) {
						defer wg.Done()
						_, _ = store.RecordIncrement(ctx, id)
					}(fmt.Sprintf("user-%d", u))
				}
			}
			wg.Wait()

			convey.Convey("Then no increment should be lost", func() {
				totals := store.LoadAllTotals(ctx)
				convey.So(totals.Len(), convey.ShouldEqual, users)
				for u := 0; u < users; u++ {
					id := fmt.Sprintf("user-%d", u)
					convey.So(totals.Get(id), convey.ShouldEqual, perUser)
					convey.So(store.LoadEvents(ctx, id), convey.ShouldHaveLength, perUser)
				}
			})
		})
	}
}

func TestKeyedMutex(t *testing.T) {
	convey.Convey("Given a keyed mutex", t, func() {
		km := repository.NewKeyedMutex()

		convey.Convey("Then the same key should yield the same mutex", func() {
			convey.So(km.Get("a"), convey.ShouldPointTo, km.Get("a"))
			convey.So(km.Get("a"), convey.ShouldNotPointTo, km.Get("b"))
		})

		convey.Convey("Then distinct keys should not block each other", func() {
			unlockA := km.Lock("a")
			defer unlockA()
			done := make(chan struct{})
			go func() {
				unlock := km.Lock("b")
				unlock()
				close(done)
			}()
			finished := false
			select {
			case <-done:
				finished = true
			case <-time.After(time.Second):
			}
			convey.So(finished, convey.ShouldBeTrue)
		})
	})
}
