package xgo

import (
	"runtime/debug"

	"github.com/go-kratos/kratos/v2/log"
)

// RecoverFromError 捕获 panic 并记录堆栈，cb 可选
func RecoverFromError(cb func(e any)) {
	if e := recover(); e != nil {
		log.Errorf("Recover => %v\n%s\n", e, debug.Stack())
		if cb != nil {
			cb(e)
		}
	}
}

// SafeGo 启动带 panic 保护的协程
func SafeGo(fn func()) {
	go func() {
		defer RecoverFromError(nil)
		fn()
	}()
}
