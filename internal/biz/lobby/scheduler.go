package lobby

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/work"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	tickInterval = time.Second

	ClosedCancelled = "cancelled"
	ClosedNoQuorum  = "not enough players"
	ClosedShutdown  = "shutdown"
)

// Config 倒计时参数
type Config struct {
	Waits       []time.Duration // 允许的等待时长，第一个为默认
	PromptTTL   time.Duration
	Presets     []int64
	RenderEvery time.Duration // 常规推送间隔
	FinalWindow time.Duration // 最后阶段每秒推送
	Timeout     time.Duration // 单次账本调用超时
}

func (c *Config) defaults() {
	if len(c.Waits) == 0 {
		c.Waits = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	}
	if c.PromptTTL <= 0 {
		c.PromptTTL = 12 * time.Second
	}
	if c.RenderEvery <= 0 {
		c.RenderEvery = 5 * time.Second
	}
	if c.FinalWindow <= 0 {
		c.FinalWindow = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

// Hooks 大厅生命周期回调，全部在串行队列内调用
type Hooks struct {
	Render func(l *Lobby, v game.View)
	// Ready 人数达标，交给引擎创建会话；押注已扣款，失败时由引擎负责退款
	Ready func(ctx context.Context, l *Lobby)
	// Closed 已全额退款并丢弃
	Closed func(l *Lobby, reason string)
}

// OpenRequest 创建大厅
type OpenRequest struct {
	Channel     string
	Server      string
	Kind        session.Kind
	Title       string
	Mode        string
	CreatorID   string
	CreatorName string
	Wait        time.Duration
	Bet         int64
	Selection   string
	Rules       game.Rules
}

// Scheduler 按频道管理大厅。不加锁，只能在引擎串行队列内调用
type Scheduler struct {
	cfg     Config
	timer   work.Scheduler
	ledger  economy.Gateway
	now     func() time.Time
	hooks   Hooks
	lobbies map[string]*Lobby
	prompts map[string]*Prompt
}

func NewScheduler(cfg Config, timer work.Scheduler, ledger economy.Gateway, now func() time.Time, hooks Hooks) *Scheduler {
	cfg.defaults()
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cfg:     cfg,
		timer:   timer,
		ledger:  ledger,
		now:     now,
		hooks:   hooks,
		lobbies: make(map[string]*Lobby),
		prompts: make(map[string]*Prompt),
	}
}

func (s *Scheduler) Get(channel string) (*Lobby, bool) {
	l, ok := s.lobbies[channel]
	return l, ok
}

func (s *Scheduler) Len() int { return len(s.lobbies) }

// SetWaits 热更新等待时长
func (s *Scheduler) SetWaits(waits []time.Duration) {
	if len(waits) > 0 {
		s.cfg.Waits = waits
	}
}

func (s *Scheduler) wait(d time.Duration) (time.Duration, error) {
	if d == 0 {
		return s.cfg.Waits[0], nil
	}
	if !lo.Contains(s.cfg.Waits, d) {
		return 0, codes.Validation("wait must be one of %v", s.cfg.Waits)
	}
	return d, nil
}

func (s *Scheduler) debit(ctx context.Context, id string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.ledger.Debit(ctx, id, amount, economy.ReasonBet)
}

// Open 先扣发起者押注，再登记大厅并启动倒计时
func (s *Scheduler) Open(ctx context.Context, req OpenRequest) (*Lobby, error) {
	if _, ok := s.lobbies[req.Channel]; ok {
		return nil, codes.ErrLobbyExists
	}
	wait, err := s.wait(req.Wait)
	if err != nil {
		return nil, err
	}
	if err := req.Rules.CheckBet(req.Bet, req.Selection); err != nil {
		return nil, err
	}
	if err := s.debit(ctx, req.CreatorID, req.Bet); err != nil {
		return nil, err
	}

	l := &Lobby{
		ID:        uuid.NewString(),
		Channel:   req.Channel,
		Server:    req.Server,
		Kind:      req.Kind,
		Title:     req.Title,
		Mode:      req.Mode,
		CreatorID: req.CreatorID,
		Wait:      wait,
		StartedAt: s.now(),
		Rules:     req.Rules,
		Entries: []game.Entry{{
			ParticipantID: req.CreatorID,
			Name:          req.CreatorName,
			Amount:        req.Bet,
			Selection:     req.Selection,
		}},
	}
	l.lastShown = int(wait / time.Second)
	s.lobbies[l.Channel] = l
	id := l.ID
	l.ticker = s.timer.Forever(tickInterval, func() { s.tick(l.Channel, id) })
	log.Infof("lobby opened. %s creator=%s bet=%d", l.Desc(), req.CreatorID, req.Bet)
	return l, nil
}

// Join 扣款成功后才写入报名
func (s *Scheduler) Join(ctx context.Context, channel, id, name string, amount int64, selection string) (*Lobby, error) {
	l, ok := s.lobbies[channel]
	if !ok {
		return nil, codes.ErrSessionNotFound
	}
	switch {
	case l.Has(id):
		return nil, codes.Validation("you have already joined")
	case l.Full():
		return nil, codes.Validation("this game is full")
	}
	if err := l.Rules.CheckBet(amount, selection); err != nil {
		return nil, err
	}
	if err := s.debit(ctx, id, amount); err != nil {
		return nil, err
	}
	l.Entries = append(l.Entries, game.Entry{ParticipantID: id, Name: name, Amount: amount, Selection: selection})
	delete(s.prompts, promptKey(channel, id))
	log.Infof("lobby join. %s id=%s bet=%d sel=%s", l.Desc(), id, amount, selection)
	s.render(l)
	return l, nil
}

func promptKey(channel, id string) string { return channel + "/" + id }

// Prompt 报名未带金额时给出预设金额
func (s *Scheduler) Prompt(channel, id, selection string) (*Prompt, error) {
	l, ok := s.lobbies[channel]
	if !ok {
		return nil, codes.ErrSessionNotFound
	}
	if l.Has(id) {
		return nil, codes.Validation("you have already joined")
	}
	presets := lo.Filter(s.cfg.Presets, func(v int64, _ int) bool {
		return v >= l.Rules.MinBet && (l.Rules.MaxBet <= 0 || v <= l.Rules.MaxBet)
	})
	p := &Prompt{Channel: channel, ParticipantID: id, Selection: selection, Presets: presets, CreatedAt: s.now()}
	s.prompts[promptKey(channel, id)] = p
	return p, nil
}

// Bet 点击预设金额，提示过期后拒绝
func (s *Scheduler) Bet(ctx context.Context, channel, id, name string, amount int64, selection string) (*Lobby, error) {
	key := promptKey(channel, id)
	p, ok := s.prompts[key]
	if !ok || s.now().Sub(p.CreatedAt) > s.cfg.PromptTTL {
		delete(s.prompts, key)
		return nil, codes.Validation("that bet prompt has expired")
	}
	return s.Join(ctx, channel, id, name, amount, selection)
}

// StartNow 发起者提前开局，人数不足时大厅保持不变
func (s *Scheduler) StartNow(ctx context.Context, channel, actor string) error {
	l, ok := s.lobbies[channel]
	if !ok {
		return codes.ErrSessionNotFound
	}
	if actor != l.CreatorID {
		return codes.Validation("only the host can start the game")
	}
	if !l.Quorum() {
		return codes.Validation("need at least %d players", l.Rules.MinPlayers)
	}
	if l = s.take(channel, l.ID); l != nil {
		s.ready(ctx, l)
	}
	return nil
}

// Cancel 发起者取消，全额退款
func (s *Scheduler) Cancel(ctx context.Context, channel, actor string) error {
	l, ok := s.lobbies[channel]
	if !ok {
		return codes.ErrSessionNotFound
	}
	if actor != l.CreatorID {
		return codes.Validation("only the host can cancel the game")
	}
	if l = s.take(channel, l.ID); l != nil {
		s.close(ctx, l, ClosedCancelled)
	}
	return nil
}

// take 移除大厅记录，只有第一个调用者拿到
func (s *Scheduler) take(channel, id string) *Lobby {
	l, ok := s.lobbies[channel]
	if !ok || l.ID != id {
		return nil
	}
	delete(s.lobbies, channel)
	s.timer.Cancel(l.ticker)
	return l
}

func (s *Scheduler) tick(channel, id string) {
	l, ok := s.lobbies[channel]
	if !ok || l.ID != id {
		// 已被开局或取消
		return
	}
	remaining := l.Remaining(s.now())
	if remaining <= 0 {
		s.expire(l)
		return
	}
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs == l.lastShown {
		return
	}
	final := secs <= int(s.cfg.FinalWindow/time.Second)
	every := max(int(s.cfg.RenderEvery/time.Second), 1)
	if final || secs%every == 0 {
		l.lastShown = secs
		s.render(l)
	}
}

func (s *Scheduler) expire(l *Lobby) {
	if l = s.take(l.Channel, l.ID); l == nil {
		return
	}
	ctx := context.Background()
	if l.Quorum() {
		s.ready(ctx, l)
		return
	}
	s.close(ctx, l, ClosedNoQuorum)
}

func (s *Scheduler) ready(ctx context.Context, l *Lobby) {
	log.Infof("lobby ready. %s", l.Desc())
	if s.hooks.Ready != nil {
		s.hooks.Ready(ctx, l)
	}
}

func (s *Scheduler) close(ctx context.Context, l *Lobby, reason string) {
	Refund(ctx, s.ledger, s.cfg.Timeout, l.Entries)
	for key, p := range s.prompts {
		if p.Channel == l.Channel {
			delete(s.prompts, key)
		}
	}
	log.Infof("lobby closed. %s reason=%s", l.Desc(), reason)
	if s.hooks.Closed != nil {
		s.hooks.Closed(l, reason)
	}
}

func (s *Scheduler) render(l *Lobby) {
	if s.hooks.Render != nil {
		s.hooks.Render(l, l.View(s.now()))
	}
}

// Refund 逐笔退回押注，失败记录以便人工对账
func Refund(ctx context.Context, ledger economy.Gateway, timeout time.Duration, entries []game.Entry) {
	for _, e := range entries {
		if e.Amount <= 0 {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		_, err := ledger.Credit(cctx, e.ParticipantID, e.Amount, economy.ReasonRefund)
		cancel()
		if err != nil {
			log.Errorf("refund failed, reconcile manually. id=%s amount=%d err=%v", e.ParticipantID, e.Amount, err)
		}
	}
}

// Sweep 清理过期的下注提示
func (s *Scheduler) Sweep() int {
	now := s.now()
	n := 0
	for key, p := range s.prompts {
		if now.Sub(p.CreatedAt) > s.cfg.PromptTTL {
			delete(s.prompts, key)
			n++
		}
	}
	return n
}

// Close 停服时退回所有大厅
func (s *Scheduler) Close(ctx context.Context) {
	for channel, l := range s.lobbies {
		if l = s.take(channel, l.ID); l != nil {
			s.close(ctx, l, ClosedShutdown)
		}
	}
}
