package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"riskform/internal/cfg"
	"riskform/internal/codebook"
	"riskform/internal/common"
	"riskform/internal/features"
	"riskform/internal/metrics"
	"riskform/internal/ml"
	"riskform/internal/storage"
	"riskform/internal/web"
)

// backend is the classifier plus whatever it needs released at shutdown.
type backend struct {
	classifier ml.Classifier
	explainer  ml.Explainer // native explainer, nil when the backend has none
	closer     io.Closer
}

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cb := loadCodebook(c)
	builder := features.NewBuilder(cb)

	be, err := initializeBackend(c, cb)
	if err != nil {
		log.Fatal().Err(err).Str("backend", c.ModelBackend).Msg("model backend unavailable")
	}
	defer closeBackend(be)

	explainer, err := initializeExplainer(c, builder, be)
	if err != nil {
		log.Fatal().Err(err).Msg("explainer unavailable")
	}

	m := metrics.New()
	trackModelAge(ctx, c, m)

	tracker := ml.NewAttributionTracker(cb.Order(), c.AttributionStatsPath)
	defer saveTracker(tracker)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	plotDir, cleanup, err := initializePlotDir(c)
	if err != nil {
		log.Fatal().Err(err).Msg("plot directory unavailable")
	}
	defer cleanup()

	mode, _ := ml.ParseMode(c.PredictionMode)
	svc, err := ml.NewService(ml.ServiceConfig{
		Mode:          mode,
		PositiveClass: c.PositiveClass,
		Classifier:    be.classifier,
		Explainer:     explainer,
		Metrics:       m,
		Tracker:       tracker,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("prediction service setup failed")
	}

	webCfg := web.Config{
		Builder:      builder,
		Predictor:    svc,
		Tracker:      tracker,
		Metrics:      m,
		PlotDir:      plotDir,
		HistoryLimit: c.HistoryLimit,
		Port:         c.HTTPPort,
	}
	if store != nil {
		webCfg.History = store
	}
	srv, err := web.New(webCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("web server setup failed")
	}

	errc, err := srv.Start()
	if err != nil {
		log.Fatal().Err(err).Msg("web server start failed")
	}

	log.Info().
		Int("port", c.HTTPPort).
		Str("mode", string(mode)).
		Str("backend", c.ModelBackend).
		Bool("history", store != nil).
		Msg("risk form ready")

	waitForShutdown(ctx, srv, errc)
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if c.LogFormat == common.LogFormatConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// loadCodebook returns the built-in codebook unless a file overrides it. A
// codebook that disagrees with the feature order is fatal.
func loadCodebook(c cfg.Settings) *codebook.Codebook {
	if c.CodebookPath == "" {
		return codebook.Default()
	}
	cb, err := codebook.LoadFile(c.CodebookPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.CodebookPath).Msg("codebook load failed")
	}
	log.Info().Str("path", c.CodebookPath).Int("fields", cb.Len()).Msg("loaded codebook")
	return cb
}

func initializeBackend(c cfg.Settings, cb *codebook.Codebook) (*backend, error) {
	switch c.ModelBackend {
	case common.BackendPython:
		bridge, err := ml.NewPythonBridge(ml.PythonConfig{
			ModelPath:     c.ModelPath,
			PythonPath:    c.PythonPath,
			ScriptPath:    c.BridgeScript,
			Columns:       cb.Order(),
			PositiveClass: c.PositiveClass,
			Timeout:       c.PredictTimeout,
		})
		if err != nil {
			return nil, err
		}
		if err := checkModelColumns(cb, bridge.FeatureNames()); err != nil {
			_ = bridge.Close()
			return nil, err
		}
		return &backend{classifier: bridge, explainer: bridge, closer: bridge}, nil

	case common.BackendONNX:
		onnx, err := ml.NewONNXClassifier(ml.ONNXConfig{
			ModelPath:   c.ModelPath,
			LibraryPath: c.ONNX.LibraryPath,
			InputName:   c.ONNX.Input,
			LabelOutput: c.ONNX.LabelOutput,
			ProbaOutput: c.ONNX.ProbaOutput,
			Columns:     cb.Len(),
		})
		if err != nil {
			return nil, err
		}
		return &backend{classifier: onnx, closer: onnx}, nil

	case common.BackendRemote:
		remote := ml.NewRemoteClassifier(c.RemoteURL, cb.Order(), c.PositiveClass, c.PredictTimeout)
		return &backend{classifier: remote, explainer: remote}, nil

	default:
		return nil, fmt.Errorf("unknown model backend %q", c.ModelBackend)
	}
}

// checkModelColumns compares the names stored in the model with the feature
// order. Models trained on unnamed columns carry "0", "1", ... and only the
// count can be checked.
func checkModelColumns(cb *codebook.Codebook, names []string) error {
	if len(names) == 0 {
		return nil
	}
	positional := true
	for i, n := range names {
		if n != strconv.Itoa(i) {
			positional = false
			break
		}
	}
	if positional {
		if len(names) != cb.Len() {
			return fmt.Errorf("%w: model expects %d columns, codebook has %d", codebook.ErrConfigMismatch, len(names), cb.Len())
		}
		return nil
	}
	return cb.CheckColumns(names)
}

func initializeExplainer(c cfg.Settings, builder *features.Builder, be *backend) (ml.Explainer, error) {
	if !c.NeedsExplainer() {
		return nil, nil
	}
	if c.Explainer == common.ExplainerModel {
		if be.explainer == nil {
			return nil, errors.New(common.ErrMsgONNXNeedsExplainer)
		}
		return be.explainer, nil
	}

	baseline, err := builder.Build(features.Defaults(builder.Codebook()))
	if err != nil {
		return nil, fmt.Errorf("default input does not build: %w", err)
	}
	log.Info().Stringer("baseline", baseline).Msg("using occlusion explainer")
	return ml.NewOcclusionExplainer(be.classifier, baseline.Values(), c.PositiveClass), nil
}

func trackModelAge(ctx context.Context, c cfg.Settings, m *metrics.Metrics) {
	if c.ModelBackend == common.BackendRemote {
		return
	}
	info, err := os.Stat(c.ModelPath)
	if err != nil {
		log.Warn().Err(err).Msg("cannot stat model artifact, model age not tracked")
		return
	}
	go m.TrackModelAge(ctx, info.ModTime(), time.Minute)
}

// initializeStorage opens the prediction history if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without history")
		return nil
	}
	return store
}

// initializePlotDir uses PLOT_DIR when set, otherwise a temporary directory
// removed at shutdown.
func initializePlotDir(c cfg.Settings) (string, func(), error) {
	if c.PlotDir != "" {
		if err := os.MkdirAll(c.PlotDir, 0o755); err != nil {
			return "", nil, err
		}
		return c.PlotDir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "riskform-plots-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove plot directory")
		}
	}, nil
}

func saveTracker(t *ml.AttributionTracker) {
	if err := t.Save(); err != nil {
		log.Error().Err(err).Msg("failed to save attribution statistics")
	}
}

func closeBackend(be *backend) {
	if be.closer == nil {
		return
	}
	if err := be.closer.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close model backend")
	}
}

// waitForShutdown blocks until a signal arrives or the server fails, then
// stops the server within a bounded time.
func waitForShutdown(ctx context.Context, srv *web.Server, errc <-chan error) {
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err, ok := <-errc:
		if ok && err != nil {
			log.Error().Err(err).Msg("web server failed")
		}
	}

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
}
