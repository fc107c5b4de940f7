package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	palace "github.com/cuer-ai/memory-palace"
	"github.com/cuer-ai/memory-palace/apiServer"
	"github.com/cuer-ai/memory-palace/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	conf := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		conf = loaded
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	p, err := palace.New(palace.Config{
		DataPath:      conf.DataPath,
		MinimumFreeGB: conf.MinimumFreeGB,
		Logger:        logger,
	})
	if err != nil {
		slog.Error("failed to open palace store", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	server := apiServer.New(p,
		apiServer.WithLogger(slog.Default()),
		apiServer.WithBaseURL(conf.BaseURL),
	)

	slog.Info("memory palace listening", "addr", conf.Listen, "dataPath", conf.DataPath)
	if err := http.ListenAndServe(conf.Listen, server); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
