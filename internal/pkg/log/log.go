package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger = zap.Must(zap.NewProduction()).Sugar()
	Logger = zap.Must(zap.NewDevelopment()).Sugar()
)

// Setup replaces Logger. json switches to the production encoder.
func Setup(debug, json bool) error {
	conf := zap.NewDevelopmentConfig()
	if json {
		conf = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	conf.Level = zap.NewAtomicLevelAt(level)

	l, err := conf.Build()
	if err != nil {
		return err
	}

	Logger = l.Sugar()

	return nil
}

// MaskURL shortens long URLs so request logs don't carry full tokens or
// signatures.
func MaskURL(u string) string {
	if len(u) > 50 {
		return u[:30] + "..." + u[len(u)-15:]
	}
	return u
}
