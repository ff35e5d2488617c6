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

// @title xRegistry .NET/NuGet Adapter API
// @version 1.0
// @description Read-only xRegistry surface over NuGet.org. NuGet's catalog
// @description is a cursor-paginated commit log meant for incremental
// @description out-of-band crawling, so the served package set is the
// @description operator-supplied id seed list in this config.

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath /
// @schemes http https

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	_ "github.com/xregistry-bridge/bridge/internal/docs"
	"github.com/xregistry-bridge/bridge/internal/ecosystem/nuget"
	"github.com/xregistry-bridge/bridge/internal/xregistry"
	"github.com/xregistry-bridge/bridge/pkg/config"
	httpmw "github.com/xregistry-bridge/bridge/pkg/http"
	"github.com/xregistry-bridge/bridge/pkg/lifecycle"
	"github.com/xregistry-bridge/bridge/pkg/logger"
)

const defaultConfigPath = "~/.xregistry/adapter-nuget.json"

var errFailedToLoadConfig = fmt.Errorf("failed to load nuget adapter config")

type fileConfig struct {
	ListenAddr      string            `json:"listenaddr"`
	RefreshInterval logger.Duration   `json:"refreshinterval"`
	// SeedPackageIDs lists the NuGet package ids this adapter serves.
	SeedPackageIDs []string          `json:"seedpackageids"`
	NuGet          nuget.Config      `json:"nuget"`
	Server         xregistry.Options `json:"server"`
	Logging        *logger.Config    `json:"logging"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "Path to nuget adapter config file")
	flag.Parse()

	resolved, err := homedir.Expand(*configPath)
	if err != nil {
		return fmt.Errorf("resolving config path %q: %w", *configPath, err)
	}

	ctx := context.Background()

	var cfg fileConfig

	if err := config.NewConfig(nil).LoadAndValidate(ctx, resolved, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	appLogger, err := lifecycle.CreateComponentLogger(ctx, "adapter-nuget", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg.NuGet.Logger = appLogger

	adapter, err := nuget.New(cfg.NuGet)
	if err != nil {
		return fmt.Errorf("constructing nuget adapter: %w", err)
	}

	cfg.Server.Logger = appLogger
	server := xregistry.NewServer(adapter, cfg.Server)
	handler := httpmw.WithSwagger(server.Handler(), "adapter")

	addr := cfg.ListenAddr
	if addr == "" {
		addr = ":8084"
	}

	refresh := func(ctx context.Context) error {
		adapter.RefreshIndex(ctx, cfg.SeedPackageIDs)
		return nil
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ListenAddr:  addr,
		ServiceName: "adapter-nuget",
		Service: &lifecycle.Refresher{
			Fn:       refresh,
			Interval: time.Duration(cfg.RefreshInterval),
			Log:      appLogger,
		},
		HTTPServer: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
		Logger: appLogger,
	})
}
