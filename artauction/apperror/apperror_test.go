package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantStatus int
	}{
		{
			name:       "Validation",
			err:        Validation("name is required"),
			wantKind:   KindValidation,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Storage",
			err:        Storage("failed to save artifact", cause),
			wantKind:   KindStorage,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "Unavailable",
			err:        Unavailable("read model store down", cause),
			wantKind:   KindUnavailable,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "NotFound",
			err:        NotFound("auction", int64(9)),
			wantKind:   KindNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "WrappedKeepsKind",
			err:        fmt.Errorf("handling request: %w", NotFound("artifact", 7)),
			wantKind:   KindNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "PlainError",
			err:        cause,
			wantKind:   0,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v", got, tt.wantKind)
			}
			if got := HTTPStatus(tt.err); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestErrorPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Storage("failed to save artifact", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() lost the cause through the kinded wrapper")
	}
	if got, want := err.Error(), "failed to save artifact: connection reset"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNotFoundMessage(t *testing.T) {
	if got, want := NotFound("auction", int64(9)).Error(), "auction 9 not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
