package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
)

func job(id string) model.Job {
	return model.Job{ID: id, Generation: 1, Request: model.AnalysisRequest{SessionID: "s-" + id}}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with capacity 2", t, func() {
		ctx := context.Background()
		q := NewInMemoryQueue(WithCapacity(2))
		So(q.Cap(), ShouldEqual, 2)
		So(q.Len(), ShouldEqual, 0)

		Convey("When two jobs are enqueued", func() {
			So(q.Enqueue(ctx, job("a")), ShouldBeNil)
			So(q.Enqueue(ctx, job("b")), ShouldBeNil)

			Convey("Then a third is rejected as backpressure", func() {
				err := q.Enqueue(ctx, job("c"))
				So(errors.Is(err, ErrFull), ShouldBeTrue)
				So(errors.Is(err, fault.ErrBackpressure), ShouldBeTrue)
				So(q.Len(), ShouldEqual, 2)
			})

			Convey("Then they are dequeued in order", func() {
				dctx, cancel := context.WithCancel(ctx)
				defer cancel()
				ch := q.Dequeue(dctx)
				So((<-ch).ID, ShouldEqual, "a")
				So((<-ch).ID, ShouldEqual, "b")
			})

			Convey("Then closing still delivers pending jobs before ending", func() {
				So(q.Close(), ShouldBeNil)
				So(q.IsClosed(), ShouldBeTrue)
				So(errors.Is(q.Enqueue(ctx, job("c")), ErrClosed), ShouldBeTrue)

				var got []string
				for j := range q.Dequeue(ctx) {
					got = append(got, j.ID)
				}
				So(got, ShouldResemble, []string{"a", "b"})
			})
		})

		Convey("When the caller context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(errors.Is(q.Enqueue(cctx, job("a")), context.Canceled), ShouldBeTrue)
		})

		Convey("When closed twice", func() {
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
		})
	})
}

func TestInMemoryQueueConcurrency(t *testing.T) {
	Convey("Given producers and a consumer sharing a queue", t, func() {
		ctx := context.Background()
		q := NewInMemoryQueue(WithCapacity(1000))

		var wg sync.WaitGroup
		for p := 0; p < 10; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					_ = q.Enqueue(ctx, job(fmt.Sprintf("%d-%d", p, i)))
				}
			}(p)
		}
		wg.Wait()
		So(q.Close(), ShouldBeNil)

		seen := map[string]bool{}
		for j := range q.Dequeue(ctx) {
			seen[j.ID] = true
		}
		So(len(seen), ShouldEqual, 500)
	})
}
