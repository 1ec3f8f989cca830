package engine

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

// lobbyKind 大厅操作的伪类型
const lobbyKind = "lobby"

// Route 拆分后的操作ID
type Route struct {
	Kind  session.Kind
	Key   string // 仅 RouteByKey
	Sub   string
	Lobby bool
}

// Router 操作ID格式 <kind>:<key>:<sub> 或 <kind>:<sub>
type Router struct {
	defs map[session.Kind]game.Definition
}

func NewRouter(defs ...game.Definition) *Router {
	return &Router{defs: lo.SliceToMap(defs, func(d game.Definition) (session.Kind, game.Definition) {
		return d.Kind(), d
	})}
}

func (r *Router) Definition(kind session.Kind) (game.Definition, bool) {
	d, ok := r.defs[kind]
	return d, ok
}

// Kinds 已注册的玩法，按名称排序
func (r *Router) Kinds() []session.Kind {
	kinds := lo.Keys(r.defs)
	slices.Sort(kinds)
	return kinds
}

// Parse 无法识别的ID一律按找不到会话处理
func (r *Router) Parse(actionID string) (Route, error) {
	kind, rest, ok := strings.Cut(actionID, ":")
	if !ok || rest == "" {
		return Route{}, codes.ErrSessionNotFound
	}
	if kind == lobbyKind {
		return Route{Kind: lobbyKind, Sub: rest, Lobby: true}, nil
	}
	def, ok := r.defs[session.Kind(kind)]
	if !ok {
		return Route{}, codes.ErrSessionNotFound
	}
	if def.Routing() != game.RouteByKey {
		return Route{Kind: def.Kind(), Sub: rest}, nil
	}
	key, sub, ok := strings.Cut(rest, ":")
	if !ok || key == "" || sub == "" {
		return Route{}, codes.ErrSessionNotFound
	}
	return Route{Kind: def.Kind(), Key: key, Sub: sub}, nil
}

// ActionID 给玩法的局内选项加上定位前缀
func (r *Router) ActionID(s *session.Session, sub string) string {
	if d, ok := r.defs[s.Kind]; ok && d.Routing() == game.RouteByKey {
		return string(s.Kind) + ":" + s.Key + ":" + sub
	}
	return string(s.Kind) + ":" + sub
}

// Lookup 按玩法的定位方式找到会话
func (r *Router) Lookup(store *session.Store, rt Route, actor, channel string) (*session.Session, game.Definition, error) {
	def, ok := r.defs[rt.Kind]
	if !ok {
		return nil, nil, codes.ErrSessionNotFound
	}
	var (
		s     *session.Session
		found bool
	)
	switch def.Routing() {
	case game.RouteByKey:
		s, found = store.Get(rt.Key)
		found = found && s.Kind == rt.Kind
	case game.RouteByChannel:
		s, found = store.FindByChannel(channel, rt.Kind)
	case game.RouteByParticipant:
		s, found = store.FindByParticipant(actor, rt.Kind)
	}
	if !found {
		return nil, nil, codes.ErrSessionNotFound
	}
	return s, def, nil
}
