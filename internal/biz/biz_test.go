package biz

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
)

func TestDefinitionsAreUnique(t *testing.T) {
	defs := Definitions()
	kinds := lo.Map(defs, func(d game.Definition, _ int) session.Kind { return d.Kind() })
	assert.Len(t, kinds, 8)
	assert.Len(t, lo.Uniq(kinds), len(kinds))
	for _, d := range defs {
		assert.NotEmpty(t, d.Title(), d.Kind())
	}
}
