// Command sidecar is the out-of-process audio engine: it speaks
// newline-delimited JSON commands on stdin, emits responses and events on
// stdout, and serves the per-app loopback and mic-capture binary PCM
// streams over the TCP ports it reports back through
// audio_capture.binary_egress_info / voice_filter.binary_ingress_info.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jonocairns/swsh/internal/config"
	"github.com/jonocairns/swsh/internal/dsp/suppressor"
	"github.com/jonocairns/swsh/internal/eventbus"
	"github.com/jonocairns/swsh/internal/platform"
	"github.com/jonocairns/swsh/internal/protocol"
	"github.com/jonocairns/swsh/internal/queue"
	"github.com/jonocairns/swsh/internal/supervisor"
)

func main() {
	fs := pflag.NewFlagSet("sidecar", pflag.ContinueOnError)
	v := config.BindFlags(fs)

	cmd := &cobra.Command{
		Use:           "sidecar",
		Short:         "Per-app loopback capture and mic voice-filter audio engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().AddFlagSet(fs)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	log, err := newLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("sidecar: build logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting sidecar",
		zap.String("logLevel", cfg.LogLevel),
		zap.String("suppressorEngine", cfg.SuppressorEngine),
	)

	client := platform.NewClient()
	q := queue.New(cfg.QueueCapacity)
	sink := eventbus.NewSink(os.Stdout)

	factory := engineFactory(cfg, log)

	sup, err := supervisor.New(client, q, sink, factory, cfg.EgressPort, cfg.IngressPort, log)
	if err != nil {
		return fmt.Errorf("sidecar: start supervisor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		serveCommands(ctx, sup, sink, log)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case <-readerDone:
		log.Info("command stream closed")
	}

	if err := sup.Shutdown(); err != nil {
		log.Error("shutdown completed with errors", zap.Error(err))
	}
	log.Info("sidecar stopped")
	return nil
}

// serveCommands reads newline-delimited protocol.Request values from stdin
// until EOF or ctx is cancelled, dispatching each to sup and writing any
// response back through sink.
func serveCommands(ctx context.Context, sup *supervisor.Supervisor, sink *eventbus.Sink, log *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			log.Warn("dropping malformed request line", zap.Error(err))
			continue
		}

		resp := sup.HandleRequest(ctx, req)
		if req.ID == "" {
			continue
		}
		if err := eventbus.WriteResponse(sink, resp); err != nil {
			log.Warn("failed to write response", zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		log.Error("command stream read error", zap.Error(err))
	}
}

// engineFactory resolves cfg.SuppressorEngine ("auto", "onnx", or "stub")
// into an EngineFactory. "auto" uses the onnx backend when it is compiled
// in and a model path was supplied, falling back to the stub otherwise.
func engineFactory(cfg config.Config, log *zap.Logger) supervisor.EngineFactory {
	resolved := cfg.SuppressorEngine
	if resolved == "auto" {
		if suppressor.NativeAvailable() && cfg.ModelPath != "" {
			resolved = "onnx"
		} else {
			resolved = "stub"
			log.Warn("auto-detected suppressor engine: stub",
				zap.Bool("onnxCompiledIn", suppressor.NativeAvailable()),
				zap.String("modelPath", cfg.ModelPath))
		}
	}

	switch resolved {
	case "onnx":
		if !suppressor.NativeAvailable() {
			log.Error("suppressor-engine=onnx requested but onnx backend not compiled in (build with -tags onnx)")
		}
		if cfg.ModelPath == "" {
			log.Error("suppressor-engine=onnx requires --model-path")
		}
		return func(level suppressor.Level) (suppressor.Engine, error) {
			return suppressor.NewNativeEngine(cfg.ModelPath, platform.CaptureChannels, onnxHopSize, onnxStateSize, suppressor.TuningFor(level))
		}
	default:
		log.Warn("using stub suppressor engine — audio passes through without neural noise suppression")
		return func(level suppressor.Level) (suppressor.Engine, error) {
			return suppressor.NewStubEngine(platform.CaptureChannels, onnxHopSize), nil
		}
	}
}

// onnxHopSize and onnxStateSize match the recurrent model this engine
// family is built around: 10ms hops at 48kHz stereo and a 256-element
// GRU state vector carried between calls.
const (
	onnxHopSize   = 480
	onnxStateSize = 256
)

func newLogger(format, level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      false,
		Encoding:         format,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zcfg.Build()
}
