package service

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("referenced entity not found")
	ErrConflict           = errors.New("conflicting state change")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrCompensationFailed = errors.New("compensation failed, manual reconciliation required")
	ErrSagaFailed         = errors.New("saga failed")
)
