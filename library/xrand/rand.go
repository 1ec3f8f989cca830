package xrand

import (
	crand "crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"

	"golang.org/x/exp/constraints"
)

// Source 随机源。发牌、转盘、抽词都通过它，测试可注入固定序列
type Source interface {
	// Intn 返回 [0, n) 的均匀随机数，n <= 0 时返回 0
	Intn(n int) int
}

type cryptoSource struct {
	mu  sync.Mutex
	rng *mrand.ChaCha8
}

// Crypto 使用 crypto/rand 播种的 ChaCha8，输出不可预测
func Crypto() Source {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("xrand: crypto seed: " + err.Error())
	}
	return &cryptoSource{rng: mrand.NewChaCha8(seed)}
}

func (s *cryptoSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(uint64n(s.rng, uint64(n)))
}

// uint64n Lemire 拒绝采样，无取模偏差
func uint64n(r mrand.Source, n uint64) uint64 {
	limit := -n % n
	for {
		v := r.Uint64()
		if v >= limit || limit == 0 {
			return v % n
		}
	}
}

type seededSource struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// Seeded 确定性随机源，仅用于测试和回放
func Seeded(seed uint64) Source {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	return &seededSource{rng: mrand.New(mrand.NewChaCha8(s))}
}

func (s *seededSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Sequence 依次返回给定值（对 n 取模），测试用来摆牌
type Sequence struct {
	mu   sync.Mutex
	vals []int
	idx  int
}

func NewSequence(vals ...int) *Sequence {
	return &Sequence{vals: vals}
}

func (s *Sequence) Intn(n int) int {
	if n <= 0 || len(s.vals) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.vals[s.idx%len(s.vals)]
	s.idx++
	return ((v % n) + n) % n
}

// Int 返回 [min, max) 的随机整数
func Int[T constraints.Integer](src Source, min T, max T) T {
	if max <= min {
		return min
	}
	return T(src.Intn(int(max-min))) + min
}

// Pick 随机取一个元素
func Pick[T any](src Source, s []T) T {
	var zero T
	if len(s) == 0 {
		return zero
	}
	return s[src.Intn(len(s))]
}

// Shuffle Fisher-Yates 洗牌
func Shuffle[T any](src Source, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// IsHit 命中概率 percent/100
func IsHit(src Source, percent int) bool {
	return src.Intn(100) < percent
}
