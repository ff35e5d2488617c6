/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle provides a signal-driven start/stop harness for the
// bridge and adapter HTTP servers.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xregistry-bridge/bridge/pkg/logger"
)

const (
	ShutdownTimeout = 10 * time.Second

	defaultShutdownWait = 100 * time.Millisecond
	defaultErrChan      = 2
)

var (
	errShutdownTimeout = errors.New("timeout shutting down")
	errServiceStop     = errors.New("service stop failed")
)

// Service defines the interface that all long-running components must implement.
type Service interface {
	Start(context.Context) error
	Stop(context.Context) error
}

// ServerOptions holds configuration for creating a server.
type ServerOptions struct {
	ListenAddr      string
	ServiceName     string
	Service         Service
	HTTPServer      *http.Server
	ShutdownTimeout time.Duration
	LoggerConfig    *logger.Config
	Logger          logger.Logger // Optional: if provided, uses this logger instead of creating a new one
}

// RunServer starts a service with the provided options and blocks until shutdown completes.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log, cleanup, err := resolveLogger(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	errChan := make(chan error, 1)

	go func() {
		if err := opts.Service.Start(ctx); err != nil {
			errChan <- fmt.Errorf("service start failed: %w", err)
		}
	}()

	if opts.HTTPServer != nil {
		go func() {
			log.Info().Str("address", opts.ListenAddr).Str("service", opts.ServiceName).Msg("starting HTTP server")

			if err := opts.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("HTTP server failed: %w", err)
			}
		}()
	}

	return handleShutdown(ctx, cancel, opts, errChan, log)
}

func resolveLogger(ctx context.Context, opts *ServerOptions) (logger.Logger, func(), error) {
	if opts.Logger != nil {
		return opts.Logger, func() {}, nil
	}

	log, err := CreateComponentLogger(ctx, opts.ServiceName, opts.LoggerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cleanup := func() {
		if err := ShutdownLogger(); err != nil {
			log.Error().Err(err).Msg("failed to shutdown logger")
		}
	}

	return log, cleanup, nil
}

// handleShutdown manages the graceful shutdown process triggered by a signal,
// a fatal error from the service, or context cancellation.
func handleShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	opts *ServerOptions,
	errChan chan error,
	log logger.Logger,
) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received signal, initiating shutdown")
	case err := <-errChan:
		log.Error().Err(err).Msg("received error, initiating shutdown")

		return err
	case <-ctx.Done():
		log.Info().Msg("context canceled, initiating shutdown")

		return ctx.Err()
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = ShutdownTimeout
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	cancel()

	errChanShutdown := make(chan error, defaultErrChan)

	if opts.HTTPServer != nil {
		go func() {
			if err := opts.HTTPServer.Shutdown(shutdownCtx); err != nil {
				errChanShutdown <- fmt.Errorf("HTTP server shutdown: %w", err)
			}
		}()
	}

	go func() {
		if err := opts.Service.Stop(shutdownCtx); err != nil {
			errChanShutdown <- fmt.Errorf("%w: %w", errServiceStop, err)
		}
	}()

	select {
	case <-shutdownCtx.Done():
		log.Error().Msg("shutdown timed out")

		return fmt.Errorf("%w: %w", errShutdownTimeout, shutdownCtx.Err())
	case err := <-errChanShutdown:
		return err
	case <-time.After(defaultShutdownWait):
		return nil
	}
}
