package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"google.golang.org/grpc"

	"github.com/rbright/lectern/internal/asr"
	"github.com/rbright/lectern/internal/cli"
	"github.com/rbright/lectern/internal/config"
)

// commandASRServe exposes one locally configured pass over gRPC so other
// machines can use it as their grpc backend.
func (r Runner) commandASRServe(ctx context.Context, cfg config.Config, opts cli.ServeOptions, logger *slog.Logger) int {
	pass := cfg.Refining
	if opts.Pass == "streaming" {
		pass = cfg.Streaming
	}
	if strings.EqualFold(strings.TrimSpace(pass.Backend), "grpc") {
		return r.fail(fmt.Errorf("asr-serve cannot serve the %s pass: its backend is already grpc", opts.Pass))
	}
	if err := r.ensureModels(ctx, cfg, logger, pass); err != nil {
		return r.fail(err)
	}

	recognizer, err := asr.New(ctx, asr.Options{
		Name:      opts.Pass,
		Pass:      pass,
		ModelPath: cfg.ModelPath(pass.Model),
		Logger:    logger,
	})
	if err != nil {
		return r.fail(err)
	}
	defer recognizer.Close()

	listener, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return r.fail(fmt.Errorf("listen %s: %w", opts.Listen, err))
	}

	server := grpc.NewServer()
	health := asr.Register(server, recognizer, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(listener) }()
	logger.Info("asr server listening", "addr", listener.Addr().String(), "pass", opts.Pass)
	fmt.Fprintf(r.Stdout, "serving %s recognizer on %s\n", opts.Pass, listener.Addr())

	select {
	case <-ctx.Done():
		health.Shutdown()
		server.GracefulStop()
		<-errCh
		return 0
	case err := <-errCh:
		return r.fail(fmt.Errorf("asr server: %w", err))
	}
}
