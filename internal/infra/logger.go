package infra

import (
	"log"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// atomicLevel держит текущий уровень; меняется на лету через конфиг
var atomicLevel zap.AtomicLevel

// BuildLogger собирает zap логгер из LoggerConfig и подписывается
// на изменения config.yaml, чтобы менять уровень без рестарта.
func BuildLogger(cfg LoggerConfig) *zap.Logger {
	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		log.Fatalf("couldn't parse initial atomic level at logger build: %v", err)
	}
	atomicLevel = lvl

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoder := zapcore.NewJSONEncoder(encCfg)
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	// Ошибки — в stderr, остальное — в stdout
	highPriority := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel
	})
	lowPriority := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return atomicLevel.Enabled(l) && l < zapcore.ErrorLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lowPriority),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), highPriority),
	)

	logger := zap.New(core, zap.AddCaller())
	zap.ReplaceGlobals(logger)

	viper.OnConfigChange(func(in fsnotify.Event) {
		if in.Op&fsnotify.Create == 0 {
			SetLogLevel(viper.GetString("logger.level"))
		}
	})

	return logger
}

// SetLogLevel меняет уровень логирования динамически.
func SetLogLevel(level string) {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		zap.L().Error("couldn't parse level", zap.Error(err))
		return
	}
	zap.L().Info("atomic level updated", zap.String("value", level))
	atomicLevel.SetLevel(l)
}
