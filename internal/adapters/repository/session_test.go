package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
)

func TestSessionStore(t *testing.T) {
	Convey("Given a session store", t, func() {
		ctx := context.Background()
		store := NewSessionStore(ctx, WithMetricsUpdateInterval(time.Hour))
		Reset(func() { _ = store.Close() })

		Convey("When a session has never begun", func() {
			_, err := store.Get(ctx, "s1")
			So(errors.Is(err, ErrSessionNotFound), ShouldBeTrue)
			So(store.Current("s1"), ShouldEqual, uint64(0))
		})

		Convey("When a generation begins", func() {
			gen := store.Begin("s1")
			So(gen, ShouldEqual, uint64(1))

			Convey("Then the session is pending", func() {
				st, err := store.Get(ctx, "s1")
				So(err, ShouldBeNil)
				So(st.Status, ShouldEqual, model.StatusPending)
				So(st.Generation, ShouldEqual, uint64(1))
			})

			Convey("Then publishing with the newest generation applies", func() {
				res := &model.AnalysisResult{ID: "r1"}
				ok, err := store.Publish(ctx, "s1", gen, model.SessionState{Status: model.StatusDone, Result: res})
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				st, _ := store.Get(ctx, "s1")
				So(st.Status, ShouldEqual, model.StatusDone)
				So(st.Result.ID, ShouldEqual, "r1")
				So(st.SessionID, ShouldEqual, "s1")
			})

			Convey("Then a newer generation suppresses the older result", func() {
				newer := store.Begin("s1")
				So(newer, ShouldEqual, uint64(2))

				ok, err := store.Publish(ctx, "s1", gen, model.SessionState{Status: model.StatusDone, Result: &model.AnalysisResult{ID: "old"}})
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)

				st, _ := store.Get(ctx, "s1")
				So(st.Status, ShouldEqual, model.StatusPending)
				So(st.Generation, ShouldEqual, uint64(2))
			})

			Convey("Then a failed state keeps the last good result", func() {
				_, _ = store.Publish(ctx, "s1", gen, model.SessionState{Status: model.StatusDone, Result: &model.AnalysisResult{ID: "r1"}})
				next := store.Begin("s1")
				ok, err := store.Publish(ctx, "s1", next, model.SessionState{
					Status: model.StatusFailed,
					Error:  &model.ErrorInfo{Code: "analyzer", Message: "analysis failed, check connectivity"},
				})
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				st, _ := store.Get(ctx, "s1")
				So(st.Status, ShouldEqual, model.StatusFailed)
				So(st.Result.ID, ShouldEqual, "r1")
				So(st.Error.Code, ShouldEqual, "analyzer")
			})
		})

		Convey("When a context is attached to a generation", func() {
			gen := store.Begin("s1")
			runCtx, cancel, err := store.Attach(ctx, "s1", gen)
			So(err, ShouldBeNil)
			defer cancel()

			Convey("Then beginning a newer generation cancels it", func() {
				store.Begin("s1")
				So(runCtx.Err(), ShouldEqual, context.Canceled)
			})

			Convey("Then attaching a stale generation is refused", func() {
				store.Begin("s1")
				_, _, err := store.Attach(ctx, "s1", gen)
				So(errors.Is(err, fault.ErrSuperseded), ShouldBeTrue)
			})

			Convey("Then publishing a terminal state releases it", func() {
				_, _ = store.Publish(ctx, "s1", gen, model.SessionState{Status: model.StatusDone})
				So(runCtx.Err(), ShouldEqual, context.Canceled)
			})
		})

		Convey("When many goroutines begin the same session", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					store.Begin("s1")
				}()
			}
			wg.Wait()

			Convey("Then generations are unique and the counter reflects every call", func() {
				So(store.Current("s1"), ShouldEqual, uint64(50))
				So(store.Count(), ShouldEqual, 1)
			})
		})
	})
}

func TestSessionEviction(t *testing.T) {
	Convey("Given a store with a short TTL and a controllable clock", t, func() {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		store := NewSessionStore(context.Background(),
			WithMetricsUpdateInterval(time.Hour), WithSessionTTL(time.Minute), WithSessionClock(clock))
		defer store.Close()

		done := store.Begin("done")
		_, _ = store.Publish(context.Background(), "done", done, model.SessionState{Status: model.StatusDone})
		store.Begin("pending")

		now = now.Add(2 * time.Minute)
		store.evictExpired()

		Convey("Then only finished sessions are dropped", func() {
			So(store.Count(), ShouldEqual, 1)
			So(store.Current("pending"), ShouldEqual, uint64(1))
		})

		Convey("When an evicted session ID is reused", func() {
			gen := store.Begin("done")

			Convey("Then its generations continue past the evicted ones", func() {
				So(gen, ShouldBeGreaterThan, done)

				applied, err := store.Publish(context.Background(), "done", done, model.SessionState{Status: model.StatusDone})
				So(err, ShouldBeNil)
				So(applied, ShouldBeFalse)

				_, _, err = store.Attach(context.Background(), "done", done)
				So(errors.Is(err, fault.ErrSuperseded), ShouldBeTrue)
			})
		})
	})
}
