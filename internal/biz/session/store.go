package session

import (
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/yola1107/parlor/pkg/codes"
)

type indexKey struct {
	participant string
	kind        Kind
}

// Store 会话存储。participant 反向索引按需重建: 命中时校验，未命中时全量扫描该类型
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	index    map[indexKey]string
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		index:    make(map[indexKey]string),
	}
}

// Create key 已存在时返回 KeyCollision
func (st *Store) Create(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.Key]; ok {
		return codes.ErrKeyCollision
	}
	st.sessions[s.Key] = s
	return nil
}

func (st *Store) Get(key string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[key]
	return s, ok
}

// Alive s 仍是 key 对应的那一局
func (st *Store) Alive(s *Session) bool {
	cur, ok := st.Get(s.Key)
	return ok && cur == s
}

func (st *Store) Remove(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, key)
	for k, v := range st.index {
		if v == key {
			delete(st.index, k)
		}
	}
}

// FindByParticipant 查找参与者所在的某类会话
func (st *Store) FindByParticipant(id string, kind Kind) (*Session, bool) {
	ik := indexKey{participant: id, kind: kind}

	st.mu.RLock()
	if key, ok := st.index[ik]; ok {
		if s, ok := st.sessions[key]; ok && s.Has(id) {
			st.mu.RUnlock()
			return s, true
		}
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.index, ik)
	for _, s := range st.sessions {
		if s.Kind != kind {
			continue
		}
		for _, p := range s.Participants {
			st.index[indexKey{participant: p.ID, kind: kind}] = s.Key
		}
	}
	key, ok := st.index[ik]
	if !ok {
		return nil, false
	}
	return st.sessions[key], true
}

// FindByChannel 频道内某类会话，频道级游戏同一时刻只有一局
func (st *Store) FindByChannel(channel string, kind Kind) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, s := range st.sessions {
		if s.Kind == kind && s.Channel == channel {
			return s, true
		}
	}
	return nil, false
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sessions 快照
func (st *Store) Sessions() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// Clear 停服时清空
func (st *Store) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	log.Infof("session store cleared. sessions=%d", len(st.sessions))
	st.sessions = make(map[string]*Session)
	st.index = make(map[indexKey]string)
}
