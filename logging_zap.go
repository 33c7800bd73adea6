package goadsrt

import "go.uber.org/zap"

type zapLogger struct {
	l *zap.SugaredLogger
}

// NewZapLogger adapts a *zap.Logger. The key/value argument pairs map onto
// zap's sugared logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{l: l.Sugar()}
}

func (z *zapLogger) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z *zapLogger) Info(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z *zapLogger) Warn(msg string, args ...any)  { z.l.Warnw(msg, args...) }
func (z *zapLogger) Error(msg string, args ...any) { z.l.Errorw(msg, args...) }
func (z *zapLogger) With(args ...any) Logger {
	return &zapLogger{l: z.l.With(args...)}
}
