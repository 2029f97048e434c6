package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCause(t *testing.T) {
	base := New("connection refused")

	tests := []struct {
		name string
		err  error
		exp  error
	}{
		{
			name: "NoContext",
			err:  base,
			exp:  base,
		},
		{
			name: "SingleContext",
			err:  WithContext(base, "get"),
			exp:  base,
		},
		{
			name: "NestedContext",
			err:  WithContext(WithContext(base, "get"), "list folder"),
			exp:  base,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, RootCause(test.err))
		})
	}
}

func TestErrorString(t *testing.T) {
	err := WithContext(WithContext(New("boom"), "list folder"), "walk course")
	assert.Equal(t, "walk course: list folder: boom", err.Error())
}

func TestGetPrintableMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  string
	}{
		{
			name: "PlainError",
			err:  New("boom"),
			exp:  "boom",
		},
		{
			name: "FriendlyError",
			err:  NewFriendlyError("Please log in first."),
			exp:  "Please log in first.",
		},
		{
			name: "WrappedFriendlyError",
			err: WithContext(
				NewFriendlyError("Please log in first."), "build session"),
			exp: "Please log in first.",
		},
		{
			name: "WrappedPlainError",
			err:  WithContext(New("boom"), "get"),
			exp:  "get: boom",
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, GetPrintableMessage(test.err))
		})
	}
}

func TestIsAuthExpired(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  bool
	}{
		{
			name: "Bare",
			err:  AuthExpired{},
			exp:  true,
		},
		{
			name: "Wrapped",
			err:  WithContext(WithContext(AuthExpired{}, "get"), "download"),
			exp:  true,
		},
		{
			name: "Other",
			err:  WithContext(New("boom"), "get"),
			exp:  false,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, IsAuthExpired(test.err))
		})
	}
}
