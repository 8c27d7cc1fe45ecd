package main

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/pagedtree/pagedtree/internal/btree"
	"github.com/pagedtree/pagedtree/internal/carbonaware"
	"github.com/pagedtree/pagedtree/internal/pager"
)

// newLogger builds a zap.Logger writing to stderr, or to a rotated file via
// lumberjack when logPath is set (SPEC_FULL.md §1.1).
func (e *cliEnv) newLogger() *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if *e.logPath == "" {
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
		return zap.New(core)
	}

	rotator := &lumberjack.Logger{
		Filename:   *e.logPath,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), zapcore.InfoLevel)
	return zap.New(core)
}

func (e *cliEnv) pagerOptions(log *zap.Logger) []pager.Option {
	opts := []pager.Option{pager.WithLogger(log)}
	if *e.carbonAware {
		provider := carbonaware.NewMockProvider(*e.carbonRegion, log)
		opts = append(opts, pager.WithCarbonAwareFsync(provider, *e.carbonRegion), pager.WithDeferredFlushInterval(30*time.Second))
	}
	return opts
}

// openExisting opens dbPath, which must already exist (created by "init" or
// a prior run).
func (e *cliEnv) openExisting(log *zap.Logger) (*pager.Pager, *btree.Tree, error) {
	p, err := pager.Open(*e.dbPath, e.pagerOptions(log)...)
	if err != nil {
		return nil, nil, err
	}
	return p, btree.New(p), nil
}
