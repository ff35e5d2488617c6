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

// @title xRegistry Bridge API
// @version 1.0
// @description Unified read-only catalog API aggregating Node, Python, Java, .NET, OCI, and MCP ecosystem adapters behind one xRegistry surface.
// @termsOfService https://github.com/xregistry-bridge/bridge

// @contact.name xRegistry Bridge maintainers
// @contact.url https://github.com/xregistry-bridge/bridge

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/xregistry-bridge/bridge/internal/bridge"
	_ "github.com/xregistry-bridge/bridge/internal/docs"
	"github.com/xregistry-bridge/bridge/pkg/config"
	httpmw "github.com/xregistry-bridge/bridge/pkg/http"
	"github.com/xregistry-bridge/bridge/pkg/lifecycle"
	"github.com/xregistry-bridge/bridge/pkg/logger"
)

const defaultConfigPath = "~/.xregistry/bridge.json"

var errFailedToLoadConfig = fmt.Errorf("failed to load bridge config")

// fileConfig is the on-disk (or CONFIG_SOURCE=env) shape of the bridge's
// configuration: the bridge's own domain Config plus the process-level
// knobs RunServer and the logger need.
type fileConfig struct {
	ListenAddr string         `json:"listenaddr"`
	Bridge     bridge.Config  `json:"bridge"`
	Logging    *logger.Config `json:"logging"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "Path to bridge config file")
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

	appLogger, err := lifecycle.CreateComponentLogger(ctx, "bridge", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	b, err := bridge.New(cfg.Bridge, appLogger)
	if err != nil {
		return fmt.Errorf("constructing bridge: %w", err)
	}

	if err := b.Handshake(ctx); err != nil {
		return fmt.Errorf("adapter handshake failed: %w", err)
	}

	server := bridge.NewServer(b)
	handler := httpmw.WithSwagger(server.Handler(), "bridge")

	addr := cfg.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ListenAddr:  addr,
		ServiceName: "bridge",
		Service:     lifecycle.NoopService{},
		HTTPServer: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
		Logger: appLogger,
	})
}
