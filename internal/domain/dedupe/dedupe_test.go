package dedupe_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dedupe "github.com/okian/tally/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func counter() (func(context.Context) (int, error), *atomic.Int64) {
	var n atomic.Int64
	return func(context.Context) (int, error) {
		return int(n.Add(1)), nil
	}, &n
}

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should start empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a key is used for the first time", func() {
			d := dedupe.NewInMemoryDeduper()
			fn, calls := counter()
			total, replayed, err := d.Do(ctx, "key-1", fn)

			Convey("Then fn should run and the result be remembered", func() {
				So(err, ShouldBeNil)
				So(total, ShouldEqual, 1)
				So(replayed, ShouldBeFalse)
				So(calls.Load(), ShouldEqual, 1)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the same key is retried", func() {
				total, replayed, err := d.Do(ctx, "key-1", fn)

				Convey("Then the first result should be replayed without running fn", func() {
					So(err, ShouldBeNil)
					So(total, ShouldEqual, 1)
					So(replayed, ShouldBeTrue)
					So(calls.Load(), ShouldEqual, 1)
				})
			})
		})

		Convey("When fn fails", func() {
			d := dedupe.NewInMemoryDeduper()
			boom := errors.New("boom")
			_, _, err := d.Do(ctx, "key-1", func(context.Context) (int, error) { return 0, boom })

			Convey("Then the failure should not be remembered", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 0)

				total, replayed, err := d.Do(ctx, "key-1", func(context.Context) (int, error) { return 4, nil })
				So(err, ShouldBeNil)
				So(total, ShouldEqual, 4)
				So(replayed, ShouldBeFalse)
			})
		})

		Convey("When the deduper is bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			fn, calls := counter()
			for i := 0; i < 5; i++ {
				_, _, _ = d.Do(ctx, fmt.Sprintf("key-%d", i), fn)
			}

			Convey("Then the oldest keys should be evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				_, replayed, _ := d.Do(ctx, "key-0", fn)
				So(replayed, ShouldBeFalse)
				So(calls.Load(), ShouldEqual, 6)
				_, replayed, _ = d.Do(ctx, "key-4", fn)
				So(replayed, ShouldBeTrue)
			})
		})

		Convey("When the deduper is unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			fn, _ := counter()
			for i := 0; i < 100; i++ {
				_, _, _ = d.Do(ctx, fmt.Sprintf("key-%d", i), fn)
			}

			Convey("Then every key should be kept", func() {
				So(d.Size(), ShouldEqual, 100)
			})
		})

		Convey("When the same key arrives concurrently", func() {
			d := dedupe.NewInMemoryDeduper()
			var calls atomic.Int64
			release := make(chan struct{})
			slow := func(context.Context) (int, error) {
				calls.Add(1)
				<-release
				return 9, nil
			}

			const callers = 8
			var (
				wg       sync.WaitGroup
				replays  atomic.Int64
				mismatch atomic.Int64
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					total, replayed, err := d.Do(ctx, "same", slow)
					if err != nil || total != 9 {
						mismatch.Add(1)
					}
					if replayed {
						replays.Add(1)
					}
				}()
			}
			time.Sleep(20 * time.Millisecond)
			close(release)
			wg.Wait()

			Convey("Then fn should run exactly once", func() {
				So(calls.Load(), ShouldEqual, 1)
				So(replays.Load(), ShouldEqual, callers-1)
				So(mismatch.Load(), ShouldEqual, 0)
			})
		})

		Convey("When a waiter's context ends first", func() {
			d := dedupe.NewInMemoryDeduper()
			release := make(chan struct{})
			defer close(release)
			started := make(chan struct{})
			go func() {
				_, _, _ = d.Do(ctx, "slow", func(context.Context) (int, error) {
					close(started)
					<-release
					return 1, nil
				})
			}()
			<-started

			cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			_, _, err := d.Do(cctx, "slow", func(context.Context) (int, error) { return 2, nil })

			Convey("Then the waiter should return the context error", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}
