package tools

import "errors"

var (
	ErrToolNameEmpty         = errors.New("tool name is empty")
	ErrToolHandlerNil        = errors.New("tool handler is nil")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrToolNotFound          = errors.New("tool not found")
)
