package service

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/mmynk/settlewise/internal/calculator"
	"github.com/mmynk/settlewise/internal/engine"
	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
	"github.com/mmynk/settlewise/internal/storage"
)

// User-facing messages for lost settle races.
const (
	MsgAlreadySettled = "this was already settled"
	MsgTryAgain       = "couldn't save, try again"
)

// invalidArgument reports a malformed request.
func invalidArgument(format string, args ...any) *connect.Error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf(format, args...))
}

// toConnectError maps domain and storage errors to Connect codes.
func toConnectError(err error) *connect.Error {
	var connectErr *connect.Error
	switch {
	case errors.As(err, &connectErr):
		return connectErr
	case errors.Is(err, engine.ErrAlreadySettled):
		return connect.NewError(connect.CodeAborted, errors.New(MsgAlreadySettled))
	case errors.Is(err, storage.ErrConflict):
		return connect.NewError(connect.CodeAborted, errors.New(MsgTryAgain))
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, calculator.ErrInvalidInput),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidRecord):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
