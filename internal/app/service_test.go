package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/okian/framecoach/internal/adapters/analyzer"
	service "github.com/okian/framecoach/internal/app"
	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/overlay"
	"github.com/okian/framecoach/internal/domain/rationale"
	"github.com/okian/framecoach/internal/domain/rules"
	"github.com/okian/framecoach/internal/domain/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const tiltedLandscape = `{"telemetry": {
  "horizon_tilt_deg": 4,
  "horizon_y_pct": 50,
  "saliency_subject_bbox": [0.4, 0.3, 0.2, 0.3],
  "foreground_saliency": 0.2,
  "composition_score": 58,
  "technical_issues": ["horizon_tilt"],
  "exif_like": {"aperture": 8, "shutter_s": 0.004},
  "lighting": {"golden_hour": false, "optimal_light_eta": null, "shadow_recovery_needed": false}
}}`

const levelLandscape = `Here is the analysis: {
  "horizon_tilt_deg": 0,
  "horizon_y_pct": 66,
  "saliency_subject_bbox": [0.4, 0.3, 0.2, 0.3],
  "foreground_saliency": 0.5,
  "composition_score": 88,
  "technical_issues": [],
  "exif_like": {"aperture": 8, "shutter_s": 0.004},
  "lighting": {"golden_hour": false, "optimal_light_eta": null, "shadow_recovery_needed": false}
}`

func request(session string) model.AnalysisRequest {
	return model.AnalysisRequest{
		SessionID: session,
		UserID:    "u1",
		Image:     "data:image/jpeg;base64,AAAA",
		Mode:      telemetry.ModeLandscape,
	}
}

func static(payload string) analyzer.Analyzer {
	return analyzer.NewStatic([]byte(payload))
}

func startService(opts ...service.Option) *service.Service {
	svc := service.New(opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	Reset(svc.Stop)
	return svc
}

func mustTelemetry(doc string) telemetry.Telemetry {
	t, err := telemetry.Parse([]byte(doc), telemetry.ModeLandscape)
	So(err, ShouldBeNil)
	return t
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		Convey("When no analyzer is configured", func() {
			svc := service.New()
			So(errors.Is(svc.Start(context.Background()), service.ErrNoAnalyzer), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When it has not been started", func() {
			svc := service.New(service.WithAnalyzer(static(tiltedLandscape)))
			_, err := svc.RunAnalysis(context.Background(), request("s1"))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			svc.Stop()
		})

		Convey("When started twice and stopped twice", func() {
			svc := service.New(service.WithAnalyzer(static(tiltedLandscape)), service.WithWorkerCount(2))
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["queueLength"], ShouldEqual, 0)
			svc.Stop()
			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestRunAnalysis(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()

		Convey("When the analyzer reports a tilted landscape", func() {
			svc := startService(service.WithAnalyzer(static(tiltedLandscape)))
			res, err := svc.RunAnalysis(ctx, request("s1"))
			So(err, ShouldBeNil)

			Convey("Then ranked commands and the generic rationale are returned", func() {
				So(len(res.Commands), ShouldEqual, 3)
				So(res.Commands[0].Rule, ShouldEqual, rules.RuleTilt)
				So(res.Commands[1].Rule, ShouldEqual, rules.RuleHorizonPlacement)
				So(res.Commands[2].Rule, ShouldEqual, rules.RuleForeground)
				So(res.Rationale, ShouldEqual, rationale.FollowAdvice)
				So(res.Generation, ShouldEqual, uint64(1))
				So(res.SessionID, ShouldEqual, "s1")
			})

			Convey("Then the session holds the result", func() {
				st, err := svc.Session(ctx, "s1")
				So(err, ShouldBeNil)
				So(st.Status, ShouldEqual, model.StatusDone)
				So(st.Result.ID, ShouldEqual, res.ID)
			})

			Convey("Then the session overlay can be projected", func() {
				prims, err := svc.ProjectSessionOverlay(ctx, "s1", 400, 300)
				So(err, ShouldBeNil)
				So(len(prims), ShouldBeGreaterThan, 4)
				So(overlay.LayerOf(prims[0]), ShouldEqual, overlay.LayerGrid)
			})
		})

		Convey("When the reply is embedded in free text and needs no correction", func() {
			svc := startService(service.WithAnalyzer(static(levelLandscape)))
			res, err := svc.RunAnalysis(ctx, request(""))
			So(err, ShouldBeNil)
			So(res.Commands, ShouldBeEmpty)
			So(res.Rationale, ShouldEqual, rationale.WellComposed)
			So(res.SessionID, ShouldNotBeEmpty)
		})

		Convey("When the image is missing", func() {
			var calls atomic.Int32
			svc := startService(service.WithAnalyzer(analyzer.Func(func(context.Context, analyzer.Request) ([]byte, error) {
				calls.Add(1)
				return []byte(tiltedLandscape), nil
			})))
			req := request("s1")
			req.Image = "  "
			_, err := svc.RunAnalysis(ctx, req)

			So(errors.Is(err, fault.ErrInput), ShouldBeTrue)
			So(fault.UserMessage(err), ShouldEqual, "image and mode are required")
			So(calls.Load(), ShouldEqual, 0)
		})

		Convey("When the image is a data URL with no payload", func() {
			var calls atomic.Int32
			svc := startService(service.WithAnalyzer(analyzer.Func(func(context.Context, analyzer.Request) ([]byte, error) {
				calls.Add(1)
				return []byte(tiltedLandscape), nil
			})))
			for _, image := range []string{"data:image/png;base64,", "data:image/png;base64,==", "data:image/png"} {
				req := request("s1")
				req.Image = image
				_, err := svc.RunAnalysis(ctx, req)
				So(errors.Is(err, fault.ErrInput), ShouldBeTrue)

				_, err = svc.Submit(ctx, req)
				So(errors.Is(err, fault.ErrInput), ShouldBeTrue)
			}
			So(calls.Load(), ShouldEqual, 0)
		})

		Convey("When the analyzer is unreachable", func() {
			svc := startService(service.WithAnalyzer(analyzer.Func(func(context.Context, analyzer.Request) ([]byte, error) {
				return nil, errors.New("dial tcp: connection refused")
			})))
			_, err := svc.RunAnalysis(ctx, request("s1"))

			So(errors.Is(err, fault.ErrAnalyzer), ShouldBeTrue)
			st, _ := svc.Session(ctx, "s1")
			So(st.Status, ShouldEqual, model.StatusFailed)
			So(st.Error.Message, ShouldEqual, "analysis failed, check connectivity")
		})

		Convey("When the analyzer reply is not telemetry", func() {
			svc := startService(service.WithAnalyzer(static("I could not see the picture")))
			_, err := svc.RunAnalysis(ctx, request("s1"))

			So(errors.Is(err, fault.ErrParse), ShouldBeTrue)
			st, _ := svc.Session(ctx, "s1")
			So(st.Error.Message, ShouldEqual, "could not interpret analysis")
			So(st.Error.Message, ShouldNotContainSubstring, "picture")
		})
	})
}

func TestSupersession(t *testing.T) {
	Convey("Given an analyzer that blocks the first call until it is cancelled", t, func() {
		ctx := context.Background()
		var calls atomic.Int32
		firstStarted := make(chan struct{})
		svc := startService(service.WithAnalyzer(analyzer.Func(func(ctx context.Context, _ analyzer.Request) ([]byte, error) {
			if calls.Add(1) == 1 {
				close(firstStarted)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return []byte(levelLandscape), nil
		})))

		Convey("When a second request for the same session arrives", func() {
			firstErr := make(chan error, 1)
			go func() {
				_, err := svc.RunAnalysis(ctx, request("s1"))
				firstErr <- err
			}()
			<-firstStarted

			res, err := svc.RunAnalysis(ctx, request("s1"))
			So(err, ShouldBeNil)

			Convey("Then the first request is superseded and its result discarded", func() {
				So(errors.Is(<-firstErr, fault.ErrSuperseded), ShouldBeTrue)
				st, _ := svc.Session(ctx, "s1")
				So(st.Status, ShouldEqual, model.StatusDone)
				So(st.Generation, ShouldEqual, uint64(2))
				So(st.Result.ID, ShouldEqual, res.ID)
			})
		})
	})
}

func TestTemplates(t *testing.T) {
	Convey("Given a service with a saved level template", t, func() {
		ctx := context.Background()
		svc := startService(service.WithAnalyzer(static(tiltedLandscape)))
		tmpl, err := svc.CreateTemplate(ctx, "u1", "sunset", telemetry.ModeLandscape, mustTelemetry(levelLandscape))
		So(err, ShouldBeNil)

		Convey("When analysing against the template", func() {
			req := request("s1")
			req.TemplateID = tmpl.ID
			res, err := svc.RunAnalysis(ctx, req)
			So(err, ShouldBeNil)

			Convey("Then only template directives are returned", func() {
				So(res.TemplateID, ShouldEqual, tmpl.ID)
				So(res.Commands[0].Rule, ShouldEqual, rules.RuleTemplateTilt)
				So(res.Commands[0].Priority, ShouldEqual, 0)
				So(res.Rationale, ShouldEqual, rationale.TemplateGuidance)
			})
		})

		Convey("When the template mode differs from the request mode", func() {
			req := request("s1")
			req.Template = &model.Template{ID: "p1", Mode: telemetry.ModePortrait}
			res, err := svc.RunAnalysis(ctx, req)
			So(err, ShouldBeNil)
			So(res.TemplateID, ShouldBeEmpty)
			So(res.Commands[0].Rule, ShouldEqual, rules.RuleTilt)
		})

		Convey("When the template was deleted", func() {
			So(svc.DeleteTemplate(ctx, "u1", tmpl.ID), ShouldBeNil)
			req := request("s1")
			req.TemplateID = tmpl.ID
			res, err := svc.RunAnalysis(ctx, req)
			So(err, ShouldBeNil)
			So(res.TemplateID, ShouldBeEmpty)
			So(res.Rationale, ShouldEqual, rationale.FollowAdvice)

			_, err = svc.GetTemplate(ctx, "u1", tmpl.ID)
			So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)
			So(errors.Is(svc.DeleteTemplate(ctx, "u1", tmpl.ID), fault.ErrNotFound), ShouldBeTrue)
		})

		Convey("When saving the latest session result", func() {
			_, err := svc.RunAnalysis(ctx, request("s1"))
			So(err, ShouldBeNil)
			saved, err := svc.SaveTemplate(ctx, "u1", "", "s1")
			So(err, ShouldBeNil)
			So(saved.Name, ShouldEqual, model.DefaultTemplateName)
			So(saved.Telemetry.HorizonTiltDeg, ShouldEqual, 4.0)

			list, err := svc.ListTemplates(ctx, "u1")
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 2)
		})

		Convey("When saving from an unknown session or with a long name", func() {
			_, err := svc.SaveTemplate(ctx, "u1", "x", "nope")
			So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)

			_, err = svc.CreateTemplate(ctx, "u1", strings.Repeat("n", 51), telemetry.ModeLandscape, mustTelemetry(levelLandscape))
			So(errors.Is(err, fault.ErrInput), ShouldBeTrue)
			So(fault.UserMessage(err), ShouldEqual, model.ErrTemplateNameTooLong.Error())
		})

		Convey("When watching templates", func() {
			wctx, cancel := context.WithCancel(ctx)
			Reset(cancel)
			ch, err := svc.WatchTemplates(wctx, "u1")
			So(err, ShouldBeNil)
			So(len(<-ch), ShouldEqual, 1)
		})

		Convey("When projecting an overlay on an invalid canvas", func() {
			_, err := svc.ProjectOverlay(ctx, tmpl.Telemetry, telemetry.ModeLandscape, nil, 0, 100)
			So(errors.Is(err, fault.ErrInput), ShouldBeTrue)
		})
	})
}

func waitForStatus(svc *service.Service, session string, want model.SessionStatus) model.SessionState {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := svc.Session(context.Background(), session)
		if err == nil && st.Status == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	st, _ := svc.Session(context.Background(), session)
	return st
}

func TestSubmit(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()

		Convey("When an analysis is submitted", func() {
			svc := startService(service.WithAnalyzer(static(tiltedLandscape)))
			req := request("s1")
			req.RequestID = "r1"
			job, err := svc.Submit(ctx, req)
			So(err, ShouldBeNil)
			So(job.Generation, ShouldEqual, uint64(1))

			Convey("Then the result is published to the session", func() {
				st := waitForStatus(svc, "s1", model.StatusDone)
				So(st.Status, ShouldEqual, model.StatusDone)
				So(len(st.Result.Commands), ShouldEqual, 3)
			})

			Convey("Then resubmitting the same request ID is rejected", func() {
				_, err := svc.Submit(ctx, req)
				So(errors.Is(err, service.ErrDuplicateRequest), ShouldBeTrue)
			})
		})

		Convey("When the queue is full", func() {
			release := make(chan struct{})
			started := make(chan struct{}, 4)
			svc := startService(
				service.WithWorkerCount(1),
				service.WithQueueSize(1),
				service.WithAnalyzer(analyzer.Func(func(ctx context.Context, _ analyzer.Request) ([]byte, error) {
					started <- struct{}{}
					select {
					case <-release:
					case <-ctx.Done():
						return nil, ctx.Err()
					}
					return []byte(tiltedLandscape), nil
				})),
			)

			_, err := svc.Submit(ctx, request("a"))
			So(err, ShouldBeNil)
			<-started
			_, err = svc.Submit(ctx, request("b"))
			So(err, ShouldBeNil)

			req := request("c")
			req.RequestID = "rc"
			_, err = svc.Submit(ctx, req)

			Convey("Then the submit fails with backpressure and can be retried", func() {
				So(errors.Is(err, fault.ErrBackpressure), ShouldBeTrue)
				st, _ := svc.Session(ctx, "c")
				So(st.Status, ShouldEqual, model.StatusFailed)
				So(st.Error.Code, ShouldEqual, "backpressure")

				_, err = svc.Submit(ctx, req)
				So(errors.Is(err, service.ErrDuplicateRequest), ShouldBeFalse)
				close(release)
			})
		})

		Convey("When submitting invalid input", func() {
			svc := startService(service.WithAnalyzer(static(tiltedLandscape)))
			req := request("s1")
			req.Mode = "SUNSET"
			_, err := svc.Submit(ctx, req)
			So(errors.Is(err, fault.ErrInput), ShouldBeTrue)
			_, err = svc.Session(ctx, "s1")
			So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)
		})
	})
}

func ExampleService_RunAnalysis() {
	svc := service.New(service.WithAnalyzer(analyzer.NewStatic([]byte(levelLandscape))))
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	defer svc.Stop()

	res, err := svc.RunAnalysis(context.Background(), model.AnalysisRequest{
		SessionID: "demo",
		Image:     "data:image/jpeg;base64,AAAA",
		Mode:      telemetry.ModeLandscape,
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(len(res.Commands), res.Rationale)
	// Output: 0 Good composition! Small adjustments can make it even better.
}
