package conn

import "errors"

var (
	ErrNotConnected      = errors.New("not connected")
	ErrSwitchInProgress  = errors.New("account switch already in progress")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrManagerClosed     = errors.New("connection manager closed")
)
