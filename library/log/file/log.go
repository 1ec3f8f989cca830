package file

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 按文件落地的流水日志，只有时间和正文，没有级别和 caller
type Log struct {
	sugar *zap.SugaredLogger
	out   *lumberjack.Logger
}

type Option func(*lumberjack.Logger)

// WithRotate 单文件上限 MB / 保留个数 / 保留天数
func WithRotate(maxSizeMB, backups, days int) Option {
	return func(w *lumberjack.Logger) {
		w.MaxSize, w.MaxBackups, w.MaxAge = maxSizeMB, backups, days
	}
}

func NewFileLog(filename string, opts ...Option) *Log {
	w := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		LocalTime:  true,
		Compress:   true,
	}
	for _, o := range opts {
		o(w)
	}

	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "t",
		MessageKey:       "msg",
		ConsoleSeparator: " ",
		EncodeTime: func(t time.Time, e zapcore.PrimitiveArrayEncoder) {
			e.AppendString(t.Format("01-02 15:04:05.000"))
		},
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.InfoLevel)
	return &Log{sugar: zap.New(core).Sugar(), out: w}
}

func (l *Log) Printf(format string, args ...any) { l.sugar.Infof(format, args...) }

// Infow 正文后追加 json 字段
func (l *Log) Infow(msg string, kvs ...any) { l.sugar.Infow(msg, kvs...) }

func (l *Log) Close() error {
	_ = l.sugar.Sync()
	return l.out.Close()
}
