package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/framecoach/internal/adapters/analyzer"
	"github.com/okian/framecoach/internal/adapters/http/api"
	"github.com/okian/framecoach/internal/adapters/http/swagger"
	"github.com/okian/framecoach/internal/adapters/repository"
	app "github.com/okian/framecoach/internal/app"
	"github.com/okian/framecoach/internal/config"
	"github.com/okian/framecoach/internal/domain/rules"
	"github.com/okian/framecoach/pkg/logger"
	"github.com/okian/framecoach/pkg/metrics"
)

// HTTP server timeout constants. Writes wait on the analyzer, so the write
// timeout is derived from it.
const (
	readTimeout        = 30 * time.Second
	writeTimeoutMargin = 10 * time.Second
	idleTimeout        = 60 * time.Second
	readHeaderTimeout  = 5 * time.Second
)

// ErrNoAnalyzer is returned when neither an analyzer URL nor a fixture is set.
var ErrNoAnalyzer = errors.New("analyzer_url or analyzer_fixture must be set")

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't configured yet
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run starts the service and serves HTTP until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      cfg.AnalyzerTimeout + writeTimeoutMargin,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	metrics.SetRefreshInterval(cfg.MetricsRefresh)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		log.Info(shutdownCtx, "server stopped")
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})
	return g.Wait()
}

// newService wires the analyzer, template store and rule engine from cfg.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	an, err := newAnalyzer(cfg, log)
	if err != nil {
		return nil, err
	}
	store, err := newTemplateStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return app.New(
		app.WithLogger(log.Named("service")),
		app.WithAnalyzer(an),
		app.WithTemplateStore(store),
		app.WithEngine(rules.NewEngine(engineOptions(cfg)...)),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithSessionTTL(cfg.SessionTTL),
	), nil
}

func newAnalyzer(cfg *config.Config, log logger.Logger) (analyzer.Analyzer, error) {
	if cfg.AnalyzerURL != "" {
		a, err := analyzer.NewHTTP(cfg.AnalyzerURL,
			analyzer.WithToken(cfg.AnalyzerToken),
			analyzer.WithTimeout(cfg.AnalyzerTimeout),
			analyzer.WithMaxBodyBytes(cfg.AnalyzerMaxBodyBytes),
			analyzer.WithLogger(log.Named("analyzer")),
		)
		if err != nil {
			return nil, fmt.Errorf("analyzer: %w", err)
		}
		return a, nil
	}
	if cfg.AnalyzerFixture != "" {
		payload, err := os.ReadFile(cfg.AnalyzerFixture)
		if err != nil {
			return nil, fmt.Errorf("read analyzer fixture: %w", err)
		}
		log.Warn(context.Background(), "serving a fixed analyzer response", logger.String("fixture", cfg.AnalyzerFixture))
		return analyzer.NewStatic(payload), nil
	}
	return nil, ErrNoAnalyzer
}

func newTemplateStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.TemplateStore, error) {
	logOpt := repository.WithTemplateLogger(log.Named("templates"))
	if cfg.TemplateStore == config.StoreSQLite {
		s, err := repository.OpenSQLiteTemplateStore(ctx, cfg.TemplateDSN, logOpt)
		if err != nil {
			return nil, fmt.Errorf("open template store: %w", err)
		}
		return s, nil
	}
	return repository.NewMemoryTemplateStore(logOpt), nil
}

func engineOptions(cfg *config.Config) []rules.Option {
	return []rules.Option{
		rules.WithForegroundCutoff(cfg.ForegroundCutoff),
		rules.WithGazeDivisor(cfg.GazeDivisor),
		rules.WithShutterThresholds(cfg.FreezeShutterS, cfg.PanningShutterS, 0),
		rules.WithMaxCommands(cfg.MaxCommands),
	}
}

// newHandler registers the API and its reference docs.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithMaxImageBytes(cfg.MaxImageBytes),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats publishes the queue, session and worker gauges.
			_ = svc.GetStats()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
