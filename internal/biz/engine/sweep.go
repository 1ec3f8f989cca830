package engine

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
)

// sweep 定期清理: 超时未应答的挑战退款，过期的下注提示丢弃
func (e *Engine) sweep() {
	ctx := context.Background()
	now := e.now()
	for _, s := range e.store.Sessions() {
		if s.Phase == session.PhaseWaiting && now.Sub(s.CreatedAt) > e.cfg.SetupTimeout {
			e.abort(ctx, s, "challenge expired")
		}
	}
	if n := e.lobbies.Sweep(); n > 0 {
		log.Debugf("bet prompts expired. n=%d", n)
	}
}

func (e *Engine) persistent(s *session.Session) bool {
	if e.repo == nil {
		return false
	}
	def, ok := e.router.Definition(s.Kind)
	if !ok {
		return false
	}
	_, ok = def.(game.Persistent)
	return ok
}

// save 每次变更后写库，快照在 loop 内生成
func (e *Engine) save(s *session.Session, def game.Definition) {
	p, ok := def.(game.Persistent)
	if !ok || e.repo == nil || s.Terminal() {
		return
	}
	data, err := p.Snapshot(s)
	if err != nil {
		log.Errorf("snapshot failed. %s err=%v", s.Desc(), err)
		return
	}
	rec := game.Record{
		Key:       s.Key,
		Kind:      string(s.Kind),
		Channel:   s.Channel,
		Server:    s.Server,
		Data:      data,
		UpdatedAt: e.now(),
	}
	if len(s.Participants) > 0 {
		rec.ParticipantID = s.Participants[0].ID
	}
	e.persist.Post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
		defer cancel()
		if err := e.repo.Upsert(ctx, rec); err != nil {
			log.Errorf("save session failed. key=%s err=%v", rec.Key, err)
		}
	})
}

func (e *Engine) forget(key string) {
	e.persist.Post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
		defer cancel()
		if err := e.repo.Delete(ctx, key); err != nil {
			log.Errorf("delete saved session failed. key=%s err=%v", key, err)
		}
	})
}

// Restore 启动时加载可恢复的会话，无法恢复的存档直接删除
func (e *Engine) Restore(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	total := 0
	for _, kind := range e.router.Kinds() {
		def, _ := e.router.Definition(kind)
		p, ok := def.(game.Persistent)
		if !ok {
			continue
		}
		recs, err := e.repo.LoadAll(ctx, string(kind))
		if err != nil {
			return fmt.Errorf("load %s sessions: %w", kind, err)
		}
		v, err := e.loop.PostAndWait(ctx, func() (any, error) {
			n := 0
			for _, rec := range recs {
				s, err := p.Restore(rec, e.now())
				if err != nil {
					log.Warnf("discard saved session. key=%s err=%v", rec.Key, err)
					e.forget(rec.Key)
					continue
				}
				if err := e.store.Create(s); err != nil {
					log.Warnf("restore session failed. key=%s err=%v", rec.Key, err)
					continue
				}
				e.metrics.sessionAdded(ctx, string(kind))
				e.armTurn(s, def)
				n++
			}
			return n, nil
		})
		if err != nil {
			return err
		}
		total += v.(int)
	}
	log.Infof("sessions restored. count=%d", total)
	return nil
}
