package firestore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.ResourceExhausted, unavailable: true},
		{code: codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := WrapError("counters.next", status.Error(tt.code, "boom"))
			var repoErr *Error
			require.ErrorAs(t, err, &repoErr)
			assert.Equal(t, tt.notFound, repoErr.IsNotFound())
			assert.Equal(t, tt.conflict, repoErr.IsConflict())
			assert.Equal(t, tt.unavailable, repoErr.IsUnavailable())
		})
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	assert.Equal(t, context.Canceled, WrapError("op", status.Error(codes.Canceled, "cancelled")))
	assert.Equal(t, context.DeadlineExceeded, WrapError("op", status.Error(codes.DeadlineExceeded, "late")))
	assert.NoError(t, WrapError("op", nil))

	wrapped := WrapError("outer", WrapError("", errors.New("raw")))
	assert.EqualError(t, wrapped, "outer: raw")
}
