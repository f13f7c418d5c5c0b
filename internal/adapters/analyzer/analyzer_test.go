package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/telemetry"
)

func TestHTTPAnalyzer(t *testing.T) {
	Convey("Given an analyzer endpoint", t, func() {
		var (
			gotBody map[string]any
			gotAuth string
			status  = http.StatusOK
			reply   = `{"telemetry": {"horizon_tilt_deg": 1}}`
			delay   time.Duration
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-r.Context().Done():
					return
				}
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
		Reset(srv.Close)

		ctx := context.Background()
		req := Request{Image: "data:image/jpeg;base64,AAAA", Mode: telemetry.ModePortrait}

		Convey("When the call succeeds", func() {
			a, err := NewHTTP(srv.URL, WithToken("secret"))
			So(err, ShouldBeNil)
			raw, err := a.Analyze(ctx, req)

			Convey("Then the raw body is returned and the request carries image, mode and template", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, reply)
				So(gotAuth, ShouldEqual, "Bearer secret")
				So(gotBody["image"], ShouldEqual, req.Image)
				So(gotBody["mode"], ShouldEqual, "PORTRAIT")
				So(gotBody, ShouldContainKey, "activeTemplate")
				So(gotBody["activeTemplate"], ShouldBeNil)
			})
		})

		Convey("When a template is active", func() {
			a, _ := NewHTTP(srv.URL)
			req.Template = &model.Template{ID: "t1", Name: "golden", Mode: telemetry.ModePortrait}
			_, err := a.Analyze(ctx, req)
			So(err, ShouldBeNil)
			tmpl, ok := gotBody["activeTemplate"].(map[string]any)
			So(ok, ShouldBeTrue)
			So(tmpl["id"], ShouldEqual, "t1")
			So(gotAuth, ShouldBeEmpty)
		})

		Convey("When the endpoint fails", func() {
			status = http.StatusInternalServerError
			reply = "upstream exploded"
			a, _ := NewHTTP(srv.URL)
			_, err := a.Analyze(ctx, req)
			So(errors.Is(err, ErrStatus), ShouldBeTrue)
			So(err.Error(), ShouldNotContainSubstring, "upstream exploded")
		})

		Convey("When the response is too large", func() {
			reply = strings.Repeat("x", 64)
			a, _ := NewHTTP(srv.URL, WithMaxBodyBytes(16))
			_, err := a.Analyze(ctx, req)
			So(errors.Is(err, ErrTooLarge), ShouldBeTrue)
		})

		Convey("When the endpoint is slower than the timeout", func() {
			delay = time.Second
			a, _ := NewHTTP(srv.URL, WithTimeout(50*time.Millisecond))
			start := time.Now()
			_, err := a.Analyze(ctx, req)
			So(err, ShouldNotBeNil)
			So(time.Since(start), ShouldBeLessThan, 900*time.Millisecond)
		})

		Convey("When the caller cancels", func() {
			delay = time.Second
			a, _ := NewHTTP(srv.URL)
			cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer cancel()
			_, err := a.Analyze(cctx, req)
			So(err, ShouldNotBeNil)
			So(cctx.Err(), ShouldNotBeNil)
		})
	})

	Convey("An empty URL is rejected", t, func() {
		_, err := NewHTTP("")
		So(errors.Is(err, ErrNoURL), ShouldBeTrue)
	})
}

func TestStaticAnalyzer(t *testing.T) {
	Convey("Given a static analyzer", t, func() {
		payload := []byte(`{"a":1}`)
		a := NewStatic(payload)
		payload[0] = 'x'

		Convey("Then it returns a copy of the original payload", func() {
			raw, err := a.Analyze(context.Background(), Request{})
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual, `{"a":1}`)
		})

		Convey("Then a cancelled context fails", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := a.Analyze(ctx, Request{})
			So(err, ShouldEqual, context.Canceled)
		})
	})

	Convey("Func adapts a function", t, func() {
		var f Analyzer = Func(func(context.Context, Request) ([]byte, error) { return []byte("ok"), nil })
		raw, err := f.Analyze(context.Background(), Request{})
		So(err, ShouldBeNil)
		So(string(raw), ShouldEqual, "ok")
	})
}
