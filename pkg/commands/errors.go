package commands

import "errors"

var (
	ErrNotRegistered     = errors.New("not registered")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNilHandler        = errors.New("nil handler")
	ErrEmptyInvocation   = errors.New("empty invocation")
	ErrInvalidInvocation = errors.New("invalid invocation")
	ErrRunNotFound       = errors.New("run not found")
)
