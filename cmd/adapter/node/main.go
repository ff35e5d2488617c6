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

// @title xRegistry Node/npm Adapter API
// @version 1.0
// @description Read-only xRegistry surface over the public npm registry.

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

	"github.com/xregistry-bridge/bridge/internal/ecosystem/node"
	_ "github.com/xregistry-bridge/bridge/internal/docs"
	"github.com/xregistry-bridge/bridge/internal/xregistry"
	"github.com/xregistry-bridge/bridge/pkg/config"
	httpmw "github.com/xregistry-bridge/bridge/pkg/http"
	"github.com/xregistry-bridge/bridge/pkg/lifecycle"
	"github.com/xregistry-bridge/bridge/pkg/logger"
)

const defaultConfigPath = "~/.xregistry/adapter-node.json"

var errFailedToLoadConfig = fmt.Errorf("failed to load node adapter config")

type fileConfig struct {
	ListenAddr      string             `json:"listenaddr"`
	RefreshInterval logger.Duration    `json:"refreshinterval"`
	Node            node.Config        `json:"node"`
	Server          xregistry.Options  `json:"server"`
	Logging         *logger.Config     `json:"logging"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "Path to node adapter config file")
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

	appLogger, err := lifecycle.CreateComponentLogger(ctx, "adapter-node", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg.Node.Logger = appLogger

	adapter, err := node.New(cfg.Node)
	if err != nil {
		return fmt.Errorf("constructing node adapter: %w", err)
	}

	cfg.Server.Logger = appLogger
	server := xregistry.NewServer(adapter, cfg.Server)
	handler := httpmw.WithSwagger(server.Handler(), "adapter")

	addr := cfg.ListenAddr
	if addr == "" {
		addr = ":8081"
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ListenAddr:  addr,
		ServiceName: "adapter-node",
		Service: &lifecycle.Refresher{
			Fn:       adapter.RefreshIndex,
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
