package codes

import (
	"fmt"
	"testing"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
)

func TestReasons(t *testing.T) {
	err := Validation("bet must be between %d and %d", 10, 500)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "bet must be between 10 and 500", err.Message)

	wrapped := fmt.Errorf("lobby: %w", ErrInsufficientFunds)
	assert.True(t, errors.Is(wrapped, ErrInsufficientFunds))
	assert.True(t, IsUserFacing(wrapped))
	assert.False(t, IsUserFacing(ErrSettlement))
	assert.False(t, IsUserFacing(fmt.Errorf("redis down")))
}
