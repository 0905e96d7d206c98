package logger

import (
	"context"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/contextkeys"
)

// FormatConsole selects the human readable encoder; anything else is JSON.
const FormatConsole = "console"

// ZapAdapter implements domain.Logger on top of zap.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter builds the service logger from the log section of the
// configuration. Lines below error go to stdout, the rest to stderr.
func NewZapAdapter(cfgProvider config.Provider, serviceName string) (domain.Logger, error) {
	logCfg := cfgProvider.Get().Log

	minLevel := zapcore.InfoLevel
	if logCfg.Level != "" {
		if err := minLevel.UnmarshalText([]byte(logCfg.Level)); err != nil {
			minLevel = zapcore.InfoLevel
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encCfg.EncodeDuration = zapcore.SecondsDurationEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)
	if logCfg.Format == FormatConsole {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	below := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= minLevel && l < zapcore.ErrorLevel })
	above := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= minLevel && l >= zapcore.ErrorLevel })
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), below),
		zapcore.NewCore(encoder.Clone(), zapcore.Lock(os.Stderr), above),
	)

	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("service", serviceName))
	return &ZapAdapter{logger: zl}, nil
}

// NewFromZap wraps an existing zap logger, e.g. zaptest or the bootstrap logger.
func NewFromZap(zl *zap.Logger) domain.Logger {
	return &ZapAdapter{logger: zl}
}

// NewNop returns a logger that discards everything.
func NewNop() domain.Logger {
	return &ZapAdapter{logger: zap.NewNop()}
}

// contextFields lists the context keys lifted into every log line.
var contextFields = []contextkeys.Key{
	contextkeys.RequestIDKey,
	contextkeys.PanelSessionIDKey,
	contextkeys.PanelKey,
	contextkeys.UserIDKey,
	contextkeys.TenantIDKey,
}

func (za *ZapAdapter) log(ctx context.Context, level zapcore.Level, msg string, args []any) {
	ce := za.logger.Check(level, msg)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, len(contextFields)+len(args)/2+1)
	if ctx != nil {
		for _, key := range contextFields {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				fields = append(fields, zap.String(key.String(), v))
			}
		}
	}
	ce.Write(append(fields, pairsToFields(args)...)...)
}

// pairsToFields converts alternating key/value arguments to zap fields.
// Non-string keys and a trailing orphan value are kept under placeholder keys.
func pairsToFields(args []any) []zap.Field {
	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields = append(fields, zap.Any("orphan_field_"+strconv.Itoa(i), args[i]))
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = "invalid_field_key_" + strconv.Itoa(i)
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}

func (za *ZapAdapter) Debug(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.DebugLevel, msg, args)
}

func (za *ZapAdapter) Info(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.InfoLevel, msg, args)
}

func (za *ZapAdapter) Warn(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.WarnLevel, msg, args)
}

func (za *ZapAdapter) Error(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.ErrorLevel, msg, args)
}

// Fatal logs and exits the process.
func (za *ZapAdapter) Fatal(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.FatalLevel, msg, args)
}

func (za *ZapAdapter) With(args ...any) domain.Logger {
	return &ZapAdapter{logger: za.logger.With(pairsToFields(args)...)}
}
