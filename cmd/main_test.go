package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/framecoach/internal/config"
	"github.com/okian/framecoach/pkg/logger"
)

const landscapeDoc = `{
  "horizon_tilt_deg": 3.5,
  "horizon_y_pct": 48,
  "saliency_subject_bbox": [0.4, 0.3, 0.2, 0.3],
  "foreground_saliency": 0.7,
  "composition_score": 64,
  "technical_issues": ["horizon_tilt"],
  "exif_like": {"aperture": 8, "shutter_s": 0.004},
  "lighting": {"golden_hour": false, "optimal_light_eta": null, "shadow_recovery_needed": false}
}`

func fixtureConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(landscapeDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.New()
	cfg.AnalyzerFixture = path
	cfg.WorkerCount = 2
	return cfg
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestNewService(t *testing.T) {
	convey.Convey("Given the process wiring", t, func() {
		ctx := context.Background()
		log := logger.Nop()

		convey.Convey("When no analyzer is configured", func() {
			_, err := newService(ctx, config.New(), log)
			convey.So(errors.Is(err, ErrNoAnalyzer), convey.ShouldBeTrue)
		})

		convey.Convey("When the fixture file is missing", func() {
			cfg := config.New()
			cfg.AnalyzerFixture = "/no/such/fixture.json"
			_, err := newService(ctx, cfg, log)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When an analyzer URL is configured", func() {
			cfg := config.New()
			cfg.AnalyzerURL = "http://127.0.0.1:1/analyze"
			svc, err := newService(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc, convey.ShouldNotBeNil)
		})

		convey.Convey("When templates are kept in sqlite", func() {
			cfg := fixtureConfig(t)
			cfg.TemplateStore = config.StoreSQLite
			cfg.TemplateDSN = filepath.Join(t.TempDir(), "templates.db")
			svc, err := newService(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			svc.Stop()
		})

		convey.Convey("Then rule tuning reaches the engine", func() {
			cfg := fixtureConfig(t)
			cfg.MaxCommands = 2
			svc, err := newService(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.GetStats()["maxCommands"], convey.ShouldEqual, 2)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configured server", t, func() {
		cfg := fixtureConfig(t)
		cfg.Addr = freeAddr(t)
		cfg.ShutdownTimeout = 2 * time.Second
		ctx, cancel := context.WithCancel(context.Background())
		var runErr error
		stopped := make(chan struct{})
		go func() {
			runErr = run(ctx, cfg, logger.Nop())
			close(stopped)
		}()
		convey.Reset(func() {
			cancel()
			select {
			case <-stopped:
			case <-time.After(5 * time.Second):
			}
		})

		convey.Convey("When it is running", func() {
			base := "http://" + cfg.Addr
			var resp *http.Response
			var err error
			for range 50 {
				if resp, err = http.Get(base + "/openapi.yaml"); err == nil {
					break
				}
				time.Sleep(20 * time.Millisecond)
			}
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			body := `{"image":"aGVsbG8=","mode":"LANDSCAPE"}`
			resp, err = http.Post(base+"/v1/analyses", "application/json", strings.NewReader(body))
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			convey.Convey("Then cancelling the context shuts it down cleanly", func() {
				cancel()
				select {
				case <-stopped:
					convey.So(runErr, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					convey.So("run did not return", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("System metrics update without panicking", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
