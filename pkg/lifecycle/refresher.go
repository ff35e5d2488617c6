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

package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/xregistry-bridge/bridge/pkg/logger"
)

const defaultRefreshInterval = 15 * time.Minute

// RefreshFunc performs one round of an adapter's name-index refresh.
type RefreshFunc func(ctx context.Context) error

// Refresher is a Service (see Service in server.go) that runs fn once at
// Start and again on every tick of Interval until Stop is called or its
// context is canceled. Every ecosystem adapter's RefreshIndex has a
// different signature (a seed list, a provider namespace, or nothing but
// ctx); cmd entrypoints close over the adapter-specific call and hand
// Refresher the resulting RefreshFunc rather than each adapter
// implementing its own polling loop.
type Refresher struct {
	Fn       RefreshFunc
	Interval time.Duration
	Log      logger.Logger

	once sync.Once
	done chan struct{}
}

// Start implements lifecycle.Service. It blocks until ctx is canceled or
// Stop is called.
func (r *Refresher) Start(ctx context.Context) error {
	r.once.Do(func() { r.done = make(chan struct{}) })

	interval := r.Interval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	r.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return nil
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	if err := r.Fn(ctx); err != nil && r.Log != nil {
		r.Log.Error().Err(err).Msg("index refresh failed")
	}
}

// Stop implements lifecycle.Service.
func (r *Refresher) Stop(_ context.Context) error {
	r.once.Do(func() { r.done = make(chan struct{}) })

	select {
	case <-r.done:
	default:
		close(r.done)
	}

	return nil
}

// NoopService blocks until its context is canceled and then returns. It is
// used by processes whose only work happens before RunServer is called (the
// bridge's Handshake) and which otherwise have nothing to run but their
// HTTPServer.
type NoopService struct{}

func (NoopService) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (NoopService) Stop(context.Context) error {
	return nil
}
