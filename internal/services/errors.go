package services

import "errors"

var (
	ErrRuleNotFound       = errors.New("automation rule not found")
	ErrInvalidRule        = errors.New("invalid automation rule")
	ErrInvalidAlertConfig = errors.New("invalid alert config")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrInvalidStatus      = errors.New("invalid ticket status")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrMissingEmailUID    = errors.New("email uid required")

	// errUnchanged 让 store.UpdateList 跳过写入
	errUnchanged = errors.New("unchanged")
)

// noopBroadcaster 未接入看板时使用
type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, interface{}) {}
