package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestSentinelMatching(t *testing.T) {
	sentinel := NewC("invalid_grant", codes.InvalidArgument)

	marked := Mark(sentinel, 0)
	assert.True(t, Is(marked, sentinel))
	assert.Equal(t, codes.InvalidArgument, marked.Code())
	assert.Equal(t, "invalid_grant", marked.Error())
}

func TestWrapPreservesExistingError(t *testing.T) {
	orig := NewC("boom", codes.Internal)
	wrapped := Wrap(orig, 0)
	assert.Same(t, orig, wrapped)

	plain := fmt.Errorf("plain")
	wrapped = Wrap(plain, 0)
	assert.True(t, Is(wrapped, plain))
	assert.Equal(t, codes.Unknown, wrapped.Code())
}

func TestWrapPrefix(t *testing.T) {
	err := WrapPrefix(fmt.Errorf("inner"), "outer", 0)
	assert.Equal(t, "outer: inner", err.Error())

	err = WrapPrefix(err, "outermost", 0)
	assert.Equal(t, "outermost: outer: inner", err.Error())
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.InvalidArgument, http.StatusBadRequest},
		{codes.Unauthenticated, http.StatusUnauthorized},
		{codes.PermissionDenied, http.StatusForbidden},
		{codes.NotFound, http.StatusNotFound},
		{codes.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewC("x", tt.code).HTTPStatusCode())
	}

	explicit := NewC("x", codes.InvalidArgument).WithHTTPStatusCode(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, explicit.HTTPStatusCode())
}

func TestPublicMessage(t *testing.T) {
	err := NewC("internal detail", codes.Internal).WithPublicMessage("something went wrong")
	assert.Equal(t, "something went wrong", err.PublicMessage())
	assert.Equal(t, "internal detail", err.Error())
	assert.Equal(t, "something went wrong", err.GRPCStatus().Message())

	// Marked copies keep the public message.
	assert.Equal(t, "something went wrong", Mark(err, 0).PublicMessage())
}

func TestCodeHelpers(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil))
	assert.Equal(t, codes.Unknown, Code(fmt.Errorf("plain")))
	assert.Equal(t, codes.NotFound, Code(NewC("x", codes.NotFound)))

	assert.Equal(t, http.StatusOK, HTTPStatusCode(nil))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(fmt.Errorf("plain")))
	assert.Equal(t, http.StatusNotFound, HTTPStatusCode(NewC("x", codes.NotFound)))
}

func TestStack(t *testing.T) {
	err := New("kaboom")
	assert.Contains(t, string(err.Stack()), "errors.TestStack")
	assert.Contains(t, err.ErrorStack(), "kaboom")
}
