package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelaine/stocktrack/internal/config"
	"github.com/avelaine/stocktrack/internal/db"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")

func main() {
	flag.Parse()
	_ = godotenv.Load()
	cfg := config.Load()
	initLogger(cfg)
	defer func() { _ = zap.L().Sync() }()

	if *migrateOnlyFlag {
		if _, err := db.ConnectAndMigrate(); err != nil {
			zap.S().Fatalw("migrate-only failed", "error", err)
		}
		zap.S().Info("migrations completed; exiting as requested")
		return
	}

	dbConn, err := db.ConnectAndMigrate()
	if err != nil {
		zap.S().Fatalw("db connection failed", "error", err)
	}
	zap.S().Infow("starting server", "env", cfg.Env, "port", cfg.Port)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: withLogging(NewApp(dbConn))}

	go func() {
		zap.S().Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalw("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.S().Warnw("error during shutdown", "error", err)
	}
	zap.S().Info("server gracefully stopped")
}

// initLogger builds the global zap logger: console always, plus a rotated
// file when LOG_FILE is set.
func initLogger(cfg config.Config) {
	var zapConfig zap.Config
	if cfg.Env == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	var logger *zap.Logger
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
		}
		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(rotated),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
	}
	zap.ReplaceGlobals(logger)
}

// withLogging logs method, path, and duration for every request.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.S().Infow("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
