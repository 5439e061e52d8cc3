package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/edge-classifier/internal/capture"
	"github.com/Brownie44l1/edge-classifier/internal/classify"
	"github.com/Brownie44l1/edge-classifier/internal/config"
	"github.com/Brownie44l1/edge-classifier/internal/engine"
	"github.com/Brownie44l1/edge-classifier/internal/handlers"
	"github.com/Brownie44l1/edge-classifier/internal/labels"
	"github.com/Brownie44l1/edge-classifier/internal/model"
	"github.com/Brownie44l1/edge-classifier/internal/monitoring"
	"github.com/Brownie44l1/edge-classifier/internal/onnxrt"
	"github.com/Brownie44l1/edge-classifier/internal/timeutil"
	"github.com/Brownie44l1/edge-classifier/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON device configuration (optional)")
	listenAddr  = flag.String("listen", "", "HTTP listen address, overrides the config")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("edge-classifier %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	log := monitoring.Logger()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
	}
	if *listenAddr != "" {
		cfg.Listen = listenAddr
	} else if port := os.Getenv("PORT"); port != "" {
		addr := ":" + port
		cfg.Listen = &addr
	}
	if err := monitoring.SetLevel(cfg.GetLogLevel()); err != nil {
		log.WithError(err).Fatal("bad log level")
	}

	if name := cfg.GetSerialPort(); name != "" {
		port, err := monitoring.AttachSerial(name, cfg.GetSerialBaud())
		if err != nil {
			ports, _ := monitoring.SerialPorts()
			log.WithError(err).WithField("available", ports).Warn("serial console unavailable")
		} else {
			defer port.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"version": version.Version,
		"runtime": cfg.GetRuntime(),
		"source":  cfg.GetSource(),
		"format":  cfg.GetFormat(),
	}).Info("starting edge classifier")

	core, cleanup, err := setup(cfg, log)
	if err != nil {
		// Startup failures need a reset; keep reporting until stopped.
		monitoring.Halt(ctx, log, err, cfg.GetHaltInterval(), timeutil.RealClock{})
		os.Exit(1)
	}
	defer cleanup()

	handler := handlers.NewHandler(core, labels.Names(), log.WithField("component", "http"))

	mux := http.NewServeMux()
	mux.HandleFunc("/", enableCORS(handler.Root))
	mux.HandleFunc("/status", enableCORS(handler.Status))
	mux.HandleFunc("/capture.jpg", enableCORS(handler.Capture))
	mux.HandleFunc("/health", enableCORS(handler.Health))
	mux.HandleFunc("/test", enableCORS(handler.Test))

	srv := &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		log.Println("Endpoints:")
		log.Println("  GET /status      - Latest classification")
		log.Println("  GET /capture.jpg - Latest frame")
		log.Println("  GET /health      - Health check")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server failed")
			stop()
		}
	}()

	runErr := core.Run(ctx, cfg.GetInterval())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.WithError(runErr).Error("classification loop stopped")
		os.Exit(1)
	}
	log.Info("stopped")
}

// setup builds the model runtime, the capture device and the core. Any error
// is fatal.
func setup(cfg *config.Config, log *logrus.Logger) (*classify.Core, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	inf, err := openInferer(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if s, ok := inf.(*onnxrt.Session); ok {
		closers = append(closers, s.Close)
	}

	dev, err := openDevice(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { dev.Close() })

	core, err := classify.New(classify.Options{
		Device:         dev,
		Inferer:        inf,
		Labels:         labels.Names(),
		ExpectedFormat: cfg.GetFormat(),
		Logger:         log.WithField("component", "core"),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return core, cleanup, nil
}

func openInferer(cfg *config.Config, log *logrus.Logger) (classify.Inferer, error) {
	if cfg.GetRuntime() == config.RuntimeONNX {
		// The exported network shares the built-in model's tensor contract.
		ref := model.ReferenceFor(cfg.GetInputChannels())
		s, err := onnxrt.NewSession(onnxrt.Options{
			LibraryPath: cfg.GetONNXLibrary(),
			ModelPath:   cfg.GetModelPath(),
			InputName:   cfg.GetONNXInputName(),
			OutputName:  cfg.GetONNXOutputName(),
			Input:       ref.Input,
			Output:      ref.Output(),
		})
		if err != nil {
			return nil, err
		}
		log.WithField("model", cfg.GetModelPath()).Info("onnx runtime ready")
		return s, nil
	}

	blob := model.ReferenceBlobFor(cfg.GetInputChannels())
	if path := cfg.GetModelPath(); path != "" {
		var err error
		blob, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model: %w", err)
		}
	}
	eng, err := engine.Setup(blob, cfg.GetArenaBytes())
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"model":      eng.Graph().Name,
		"revision":   eng.Graph().Revision,
		"arena_used": eng.ArenaUsed(),
		"arena_size": cfg.GetArenaBytes(),
	}).Info("engine ready")
	return eng, nil
}

func openDevice(cfg *config.Config) (capture.Device, error) {
	w, h := cfg.GetCaptureWidth(), cfg.GetCaptureHeight()
	switch cfg.GetSource() {
	case config.SourceFiles:
		return capture.NewFiles(cfg.GetSourcePath(), w, h)
	case config.SourceCamera:
		return openCamera(cfg.GetCameraDevice(), w, h, cfg.GetFormat())
	default:
		return capture.NewSynthetic(w, h, capture.Gradient, 0), nil
	}
}
