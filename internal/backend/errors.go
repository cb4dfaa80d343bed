package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/serviceerr"
)

const notFoundMarker = "not found"

// TranslateError classifies a failed backend call. The typed status code is
// consulted first; backends that only report plain errors fall back to a
// "not found" match on the message. Everything unrecognised is Internal.
//
// The returned error matches the classification with errors.Is and still
// wraps the original error. Only not found and invalid argument messages
// are carried in the classification's description.
func TranslateError(ctx context.Context, service, method string, err error) error {
	if err == nil {
		return nil
	}

	st := status.Convert(err)
	msg := st.Message()

	var kind *serviceerr.Error
	switch {
	case st.Code() == codes.NotFound || strings.Contains(strings.ToLower(msg), notFoundMarker):
		kind = serviceerr.ErrNotFound.WithDescription(msg)
	case st.Code() == codes.Unauthenticated:
		kind = serviceerr.ErrUnauthorized
	case st.Code() == codes.InvalidArgument:
		kind = serviceerr.ErrInvalidRequest.WithDescription(msg)
	default:
		kind = serviceerr.ErrInternal
	}

	slogctx.Warn(ctx, "Backend call failed",
		"service", service,
		"method", method,
		"code", st.Code().String(),
		"classification", string(kind.Err),
		"error", msg,
	)

	return errors.Join(kind, fmt.Errorf("calling %s/%s: %w", service, method, err))
}
