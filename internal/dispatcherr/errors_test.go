package dispatcherr

import (
	"net/http"
	"testing"

	"caballus/internal/domain"
)

func TestKind_HTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput:      http.StatusBadRequest,
		KindInvalidInvocation: http.StatusBadRequest,
		KindUnauthorized:      http.StatusUnauthorized,
		KindUpstream:          http.StatusBadGateway,
		KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.HTTPStatus(); got != want {
			t.Errorf("%s: expected %d, got %d", kind, want, got)
		}
	}
}

func TestFromInvocation_WrapsDomainError(t *testing.T) {
	err := FromInvocation(domain.ErrInvalidInvocation)
	if !IsInvocation(err) {
		t.Error("expected IsInvocation to see through the wrapped error")
	}
	if err.Kind != KindInvalidInvocation {
		t.Errorf("expected KindInvalidInvocation, got %s", err.Kind)
	}
}
