package conf

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/jinzhu/copier"
	"github.com/r3labs/diff/v3"

	zconf "github.com/yola1107/parlor/library/log/zap/conf"
)

// LevelSetter 日志级别热更新
type LevelSetter interface {
	GetLevel() string
	SetLevel(level string)
	SetSensitive(keys []string)
}

// Reloader 引擎侧可热更新的部分
type Reloader interface {
	UpdateLimits(games map[string]*GameLimits)
	UpdateLobbyWaits(waits []time.Duration)
}

// WatchConfig 监听 log.logger、games 与 engine.lobby_waits 变更。Reloader 收到的是独立副本
func WatchConfig(c config.Config, bc *Bootstrap, logger LevelSetter, r Reloader) error {
	if err := c.Watch("log.logger", observer("log.logger", bc.Log.Logger, func(v *zconf.Logger) bool {
		if v.Level != logger.GetLevel() {
			logger.SetLevel(v.Level)
		}
		logger.SetSensitive(v.Sensitive)
		return true
	})); err != nil {
		return fmt.Errorf("watch %q failed: %w", "log.logger", err)
	}

	if err := c.Watch("games", watchGames(bc, r)); err != nil {
		return fmt.Errorf("watch %q failed: %w", "games", err)
	}

	// 未配置的键不能 Watch，缺省值只在启动时生效
	if c.Value(keyLobbyWaits).Load() == nil {
		return nil
	}
	if err := c.Watch(keyLobbyWaits, watchLobbyWaits(bc, r)); err != nil {
		return fmt.Errorf("watch %q failed: %w", keyLobbyWaits, err)
	}
	return nil
}

const keyLobbyWaits = "engine.lobby_waits"

func watchGames(bc *Bootstrap, r Reloader) func(string, config.Value) {
	return observer("games", &bc.Games, func(v *map[string]*GameLimits) bool {
		for kind, g := range *v {
			if err := g.Validate(); err != nil {
				log.Errorf("[config] games.%s rejected: %v", kind, err)
				return false
			}
		}
		r.UpdateLimits(CloneGames(*v))
		return true
	})
}

func watchLobbyWaits(bc *Bootstrap, r Reloader) func(string, config.Value) {
	return observer(keyLobbyWaits, &bc.Engine.LobbyWaits, func(v *[]int) bool {
		if len(*v) == 0 {
			log.Errorf("[config] %s rejected: empty", keyLobbyWaits)
			return false
		}
		waits := make([]time.Duration, 0, len(*v))
		for _, w := range *v {
			if w <= 0 {
				log.Errorf("[config] %s rejected: %d must be positive", keyLobbyWaits, w)
				return false
			}
			waits = append(waits, Duration(w))
		}
		r.UpdateLobbyWaits(waits)
		return true
	})
}

// observer 解析新值，与旧值做 diff，有变化才回调；apply 接受后才深拷贝到 target
func observer[T any](key string, target *T, apply func(*T) bool) func(string, config.Value) {
	return func(_ string, val config.Value) {
		newVal := new(T)
		if err := val.Scan(newVal); err != nil {
			log.Errorf("[config] scan failed: key=%q, err=%v", key, err)
			return
		}

		changes, err := diff.Diff(*target, *newVal)
		if err != nil {
			log.Errorf("[config] diff failed: key=%q, err=%v", key, err)
			return
		}
		if len(changes) == 0 {
			return
		}
		log.Warnf("[config] [%q] updated:\n%s", key, describe(changes))

		if !apply(newVal) {
			return
		}
		if err := copier.CopyWithOption(target, newVal, copier.Option{DeepCopy: true}); err != nil {
			log.Errorf("[config] update failed: key=%q, err=%v", key, err)
		}
	}
}

func describe(changes diff.Changelog) string {
	var sb strings.Builder
	for _, ch := range changes {
		sb.WriteString(fmt.Sprintf("  %s %s: %v -> %v\n", ch.Type, strings.Join(ch.Path, "."), ch.From, ch.To))
	}
	return sb.String()
}

// CloneGames 深拷贝限额表
func CloneGames(src map[string]*GameLimits) map[string]*GameLimits {
	out := make(map[string]*GameLimits, len(src))
	for k, v := range src {
		if v == nil {
			continue
		}
		cp := *v
		out[k] = &cp
	}
	return out
}

// Changes 返回两份配置的差异路径，便于测试和排查
func Changes(a, b any) ([]string, error) {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return nil, fmt.Errorf("type mismatch %T vs %T", a, b)
	}
	cl, err := diff.Diff(a, b)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(cl))
	for _, ch := range cl {
		paths = append(paths, strings.Join(ch.Path, "."))
	}
	return paths, nil
}
