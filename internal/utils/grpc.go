package utils

import (
	"fmt"

	"farmiot/internal/models"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ClassifyGRPC maps a Google API error onto the error taxonomy. Errors that
// carry no gRPC status are returned unchanged for models.Upstream to handle.
func ClassifyGRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", models.ErrConflict, st.Message())
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %s", models.ErrAuthenticationGap, st.Message())
	case codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", models.ErrUpstreamTimeout, st.Message())
	default:
		return fmt.Errorf("%w: %s: %s", models.ErrUpstreamUnavailable, st.Code(), st.Message())
	}
}
