package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"example.com/tlegate/internal/catalog"
	"example.com/tlegate/internal/common"
	"example.com/tlegate/internal/metrics"
	"example.com/tlegate/internal/server"
)

func setupLogging(cfg config) (io.Closer, error) {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "tlegated.log"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	w := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	common.SetLogOutput(w)
	return rotator, nil
}

func main() {
	configPath := flag.String("config", "config/tlegated.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 5*time.Minute, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	logs, err := setupLogging(cfg)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logs.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}

	var store *catalog.Store
	if cfg.Catalog != "off" {
		store, err = catalog.Open(cfg.Catalog)
		if err != nil {
			log.Fatalf("catalog: %v", err)
		}
		defer store.Close()
	}
	var collector *metrics.Collector
	if cfg.metricsEnabled() {
		collector, err = metrics.NewCollector(nil)
		if err != nil {
			log.Fatalf("metrics: %v", err)
		}
	}

	var signingKey []byte
	if cfg.ManifestSigning.PrivateKey != "" {
		if signingKey, err = os.ReadFile(cfg.ManifestSigning.PrivateKey); err != nil {
			log.Fatalf("manifest signing key: %v", err)
		}
	}

	srv, err := server.NewServer(server.Options{
		StorageDir:   cfg.StorageDir,
		Profiles:     cfg.profiles,
		Concurrency:  cfg.Concurrency,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Lang:         cfg.lang,
		Catalog:      store,
		Metrics:      collector,
		SigningKey:   signingKey,
	})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	log.Printf("tlegated listening on %s (profiles: %d extra, catalog: %s)", listenAddr, len(cfg.profiles), cfg.Catalog)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("tlegated stopped")
}
