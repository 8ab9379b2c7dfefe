package wserr

import (
	"errors"
	"testing"
)

func TestCodeClass(t *testing.T) {
	cases := []struct {
		code Code
		want Class
	}{
		{CodeBadRequest, ClassClientProtocol},
		{CodeUnauthorized, ClassClientProtocol},
		{CodeRateLimited, ClassClientProtocol},
		{CodeNotSubscribed, ClassClientSemantic},
		{CodeContestNotFound, ClassClientSemantic},
		{CodeServerError, ClassTransient},
		{CodeExternalServiceFail, ClassTransient},
	}
	for _, c := range cases {
		if got := c.code.Class(); got != c.want {
			t.Errorf("Code(%d).Class() = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestNewAndError(t *testing.T) {
	err := New(CodeBadRequest, "missing topic")
	if err.Error() != "missing topic (code=4000)" {
		t.Errorf("unexpected Error() output: %q", err.Error())
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeExternalServiceFail, "lookup failed", cause)
	if !errors.Is(err, cause) {
		t.Error("expected Wrap to preserve the cause for errors.Is")
	}
	if got := err.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestAs(t *testing.T) {
	var err error = New(CodeUnauthorized, "nope")
	werr, ok := As(err)
	if !ok {
		t.Fatal("expected As to recognize *Error")
	}
	if werr.Code != CodeUnauthorized {
		t.Errorf("Code = %d, want %d", werr.Code, CodeUnauthorized)
	}

	_, ok = As(errors.New("plain error"))
	if ok {
		t.Error("expected As to reject a plain error")
	}
}
