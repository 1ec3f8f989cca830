package codes

import (
	"github.com/go-kratos/kratos/v2/errors"
)

const (
	ReasonValidation        = "VALIDATION"
	ReasonNotYourTurn       = "NOT_YOUR_TURN"
	ReasonWrongPhase        = "WRONG_PHASE"
	ReasonIllegalAction     = "ILLEGAL_ACTION"
	ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	ReasonSessionNotFound   = "SESSION_NOT_FOUND"
	ReasonKeyCollision      = "KEY_COLLISION"
	ReasonLobbyExists       = "LOBBY_EXISTS"
	ReasonPhaseRegression   = "PHASE_REGRESSION"
	ReasonSettlement        = "SETTLEMENT_FAILURE"
	ReasonRateLimited       = "RATE_LIMITED"
	ReasonInternal          = "INTERNAL"
)

var (
	ErrValidation        = errors.New(400, ReasonValidation, "invalid request")
	ErrNotYourTurn       = errors.New(403, ReasonNotYourTurn, "it's not your turn")
	ErrWrongPhase        = errors.New(409, ReasonWrongPhase, "that can't be done right now")
	ErrIllegalAction     = errors.New(400, ReasonIllegalAction, "that move isn't allowed")
	ErrInsufficientFunds = errors.New(402, ReasonInsufficientFunds, "insufficient funds")
	ErrSessionNotFound   = errors.New(404, ReasonSessionNotFound, "no active game")
	ErrKeyCollision      = errors.New(409, ReasonKeyCollision, "a game with this key already exists")
	ErrLobbyExists       = errors.New(409, ReasonLobbyExists, "a game is already gathering players here")
	ErrPhaseRegression   = errors.New(500, ReasonPhaseRegression, "phase cannot move backwards")
	ErrSettlement        = errors.New(500, ReasonSettlement, "settlement failed")
	ErrRateLimited       = errors.New(429, ReasonRateLimited, "you're doing that too fast")
	ErrInternal          = errors.New(500, ReasonInternal, "something went wrong, please try again")
)

// Validation 带具体提示的参数错误
func Validation(format string, args ...any) *errors.Error {
	return errors.Newf(400, ReasonValidation, format, args...)
}

// Illegal 带具体提示的非法操作
func Illegal(format string, args ...any) *errors.Error {
	return errors.Newf(400, ReasonIllegalAction, format, args...)
}

// IsUserFacing 属于用户操作问题的错误，不按故障记录
func IsUserFacing(err error) bool {
	switch errors.Reason(err) {
	case ReasonValidation, ReasonNotYourTurn, ReasonWrongPhase, ReasonIllegalAction,
		ReasonInsufficientFunds, ReasonSessionNotFound, ReasonKeyCollision, ReasonLobbyExists,
		ReasonRateLimited:
		return true
	}
	return false
}
