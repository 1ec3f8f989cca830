package zap

import (
	"fmt"
	"io"
	"net/url"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yola1107/parlor/library/log/zap/conf"
)

var _ log.Logger = (*Logger)(nil)

const sensitiveMask = "***"

// Logger kratos log.Logger 的 zap 实现，级别和脱敏字段可热更新
type Logger struct {
	base    *zap.Logger
	direct  *zap.Logger // 直接经 Helper/Logger 调用
	global  *zap.Logger // 经 kratos 全局 log.Infof 调用，多一层
	level   zap.AtomicLevel
	masked  atomic.Pointer[map[string]struct{}]
	closers []io.Closer
}

// NewLogger 按配置创建日志；开启告警且配置了 webhook 时 error 日志会推送出去
func NewLogger(c *conf.Log) (*Logger, error) {
	if c == nil || c.Logger == nil {
		c = conf.DefaultConfig()
	}
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(c.Logger.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Logger.Level, err)
	}

	l := &Logger{level: level}
	cores := []zapcore.Core{consoleCore(level)}
	if c.Logger.Mode == conf.ModeProd && c.Logger.Directory != "" {
		fc, closers := fileCores(c.Logger, level)
		cores = append(cores, fc...)
		l.closers = append(l.closers, closers...)
	}
	if alertEnabled(c) {
		a := NewAlert(c.Alerter, NewWebhook(c.Webhook))
		cores = append(cores, a)
		l.closers = append(l.closers, a)
	}

	l.base = zap.New(sampled(zapcore.NewTee(cores...)), zap.AddCaller(), zap.AddStacktrace(zap.PanicLevel))
	l.direct = l.base.WithOptions(zap.AddCallerSkip(2))
	l.global = l.base.WithOptions(zap.AddCallerSkip(3))
	l.SetSensitive(c.Logger.Sensitive)

	l.base.Debug("logger ready",
		zap.String("mode", c.Logger.Mode),
		zap.String("level", level.String()),
		zap.Bool("alert", alertEnabled(c)))
	return l, nil
}

func alertEnabled(c *conf.Log) bool {
	return c.Alerter != nil && c.Alerter.Enabled && c.Webhook != nil && c.Webhook.URL != ""
}

// Log 实现 kratos log.Logger
func (l *Logger) Log(level log.Level, keyvals ...any) error {
	lv := zapcore.Level(level)
	if lv < zapcore.DPanicLevel && !l.base.Core().Enabled(lv) {
		return nil
	}
	if len(keyvals) == 0 || len(keyvals)%2 != 0 {
		l.base.Warn("unpaired keyvals", zap.Any("keyvals", keyvals))
		return nil
	}

	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == log.DefaultMessageKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	fields = l.filterSensitive(fields)

	if ce := l.caller().Check(lv, msg); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

// caller 区分调用来源，保证 caller 指向业务代码
func (l *Logger) caller() *zap.Logger {
	var pc [6]uintptr
	n := runtime.Callers(3, pc[:])
	frames := runtime.CallersFrames(pc[:n])
	for {
		f, more := frames.Next()
		if strings.Contains(f.Function, "kratos/v2/log.") {
			return l.global
		}
		if !more {
			return l.direct
		}
	}
}

func (l *Logger) Close() error {
	_ = l.base.Sync()
	for _, c := range l.closers {
		_ = c.Close()
	}
	return nil
}

func (l *Logger) GetZap() *zap.Logger { return l.base }

func (l *Logger) GetLevel() string { return l.level.String() }

// SetLevel 非法级别保持原值
func (l *Logger) SetLevel(level string) {
	if err := l.level.UnmarshalText([]byte(level)); err != nil {
		l.base.Warn("ignore invalid log level", zap.String("level", level), zap.Error(err))
		return
	}
	l.base.Info("log level changed", zap.String("level", level))
}

func (l *Logger) GetSensitive() []string {
	m := l.masked.Load()
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(*m))
	for k := range *m {
		keys = append(keys, k)
	}
	return keys
}

// SetSensitive 字段名不区分大小写
func (l *Logger) SetSensitive(keys []string) {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			m[k] = struct{}{}
		}
	}
	l.masked.Store(&m)
}

// filterSensitive 命中的字段整体打码；连接串里的密码总是打码
func (l *Logger) filterSensitive(fields []zap.Field) []zap.Field {
	var masked map[string]struct{}
	if m := l.masked.Load(); m != nil {
		masked = *m
	}
	for i, f := range fields {
		if _, ok := masked[strings.ToLower(f.Key)]; ok {
			fields[i] = zap.String(f.Key, sensitiveMask)
			continue
		}
		if f.Type == zapcore.StringType {
			if s, ok := redactURL(f.String); ok {
				fields[i] = zap.String(f.Key, s)
			}
		}
	}
	return fields
}

// redactURL postgres://u:p@host 之类的值去掉密码
func redactURL(s string) (string, bool) {
	if !strings.Contains(s, "://") || !strings.Contains(s, "@") {
		return s, false
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s, false
	}
	if _, ok := u.User.Password(); !ok {
		return s, false
	}
	u.User = url.UserPassword(u.User.Username(), sensitiveMask)
	return u.String(), true
}
