package zap

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yola1107/parlor/library/log/zap/conf"
)

const timeFormat = "2006/01/02 15:04:05.000"

// 每秒同一条消息前 100 条全记，之后每 20 条记一条
func sampled(core zapcore.Core) zapcore.Core {
	return zapcore.NewSamplerWithOptions(core, time.Second, 100, 20)
}

func consoleCore(level zapcore.LevelEnabler) zapcore.Core {
	cfg := encoderConfig()
	cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + levelColor(l) + levelTag(l) + "\x1b[0m]")
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), level)
}

// fileCores 主日志一个文件，可选单独的 error 文件
func fileCores(c *conf.Logger, level zapcore.LevelEnabler) ([]zapcore.Core, []io.Closer) {
	app := c.AppName
	if app == "" {
		app = "parlor"
	}
	r := c.Rotate
	if r == nil {
		r = conf.DefaultConfig().Logger.Rotate
	}

	var (
		cores   []zapcore.Core
		closers []io.Closer
	)
	add := func(name string, enabler zapcore.LevelEnabler) {
		w := &lumberjack.Logger{
			Filename:   filepath.Join(c.Directory, name),
			MaxSize:    r.MaxSizeMB,
			MaxBackups: r.MaxBackups,
			MaxAge:     r.MaxAgeDays,
			Compress:   r.Compress,
			LocalTime:  r.LocalTime,
		}
		var enc zapcore.Encoder
		if c.FormatJson {
			enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		} else {
			enc = zapcore.NewConsoleEncoder(encoderConfig())
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(w), enabler))
		closers = append(closers, w)
	}

	add(app+".log", level)
	if c.ErrorFile {
		add(app+"_error.log", zap.ErrorLevel)
	}
	return cores, closers
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.ConsoleSeparator = " "
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(timeFormat))
	}
	cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + levelTag(l) + "]")
	}
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return cfg
}

// levelTag 定宽，方便对齐
func levelTag(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DBG"
	case zapcore.InfoLevel:
		return "INF"
	case zapcore.WarnLevel:
		return "WRN"
	case zapcore.ErrorLevel:
		return "ERR"
	default:
		return "FTL"
	}
}

func levelColor(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "\x1b[90m"
	case zapcore.InfoLevel:
		return "\x1b[32m"
	case zapcore.WarnLevel:
		return "\x1b[33m"
	case zapcore.ErrorLevel:
		return "\x1b[31m"
	default:
		return "\x1b[35m"
	}
}
