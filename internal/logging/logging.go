// Package logging builds the engine's structured logger. Grounded on
// project-illium/ilxd's log.go, the closest real-world domain analogue in
// the example pack (a wallet-side scanner for a shielded chain), which
// pairs zap with lumberjack for rotation.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelColor mirrors ilxd's ANSI level-color map. New does not apply it to
// either sink, and neither command references it.
var LevelColor = map[zapcore.Level]string{
	zapcore.DebugLevel: "\033[37m",
	zapcore.InfoLevel:  "\033[36m",
	zapcore.WarnLevel:  "\033[33m",
	zapcore.ErrorLevel: "\033[31m",
}

// New builds a zap.Logger. When rotatePath is non-empty, output is written
// through a lumberjack.Logger (100MB/file, 5 backups, 30 days, compressed);
// otherwise output goes to stderr via zap's console encoder.
func New(level string, rotatePath string) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var core zapcore.Core
	if rotatePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   rotatePath,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), lvl)
	} else {
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(os.Stderr)), lvl)
	}

	return zap.New(core, zap.AddCaller()), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}
	return lvl, nil
}
