package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/avamon/internal/errs"
)

// preconditions are domain refusals the caller can fix by changing state first.
var preconditions = []error{
	errs.ErrInsufficientBalance,
	errs.ErrInsufficientPayment,
	errs.ErrInsufficientEnergy,
	errs.ErrInsufficientPackBalance,
	errs.ErrAlreadyClaimed,
	errs.ErrAlreadyMaxed,
	errs.ErrAlreadyResolved,
	errs.ErrNotCompleted,
	errs.ErrNotReady,
	errs.ErrInactive,
	errs.ErrSessionActive,
	errs.ErrCardLocked,
	errs.ErrQuestSlotsFull,
	errs.ErrNoActiveTemplates,
}

// toStatus maps service errors onto gRPC status codes. Unknown errors become
// codes.Internal without leaking their text.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codeOf(err)
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal")
	}
	return status.Error(code, err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrDeckNotFound):
		return codes.NotFound
	case errors.Is(err, errs.ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, errs.ErrAlreadyExists):
		return codes.AlreadyExists
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrNotOwner):
		return codes.PermissionDenied
	case errors.Is(err, errs.ErrRandomnessPending), errors.Is(err, errs.ErrPaused):
		return codes.Unavailable
	case errors.Is(err, errs.ErrRateLimited):
		return codes.ResourceExhausted
	}
	for _, p := range preconditions {
		if errors.Is(err, p) {
			return codes.FailedPrecondition
		}
	}
	return codes.Internal
}
