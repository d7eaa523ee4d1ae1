package errs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(nil))
	require.Equal(t, KindInternal, KindOf(io.EOF))
	require.Equal(t, KindParse, KindOf(Parse("search", "no results container")))

	wrapped := fmt.Errorf("search: %w", SessionExpired("redirected to sign in"))
	require.Equal(t, KindSessionExpired, KindOf(wrapped))
	require.True(t, Is(wrapped, KindSessionExpired))
	require.False(t, Is(nil, KindSessionExpired))
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotAuthenticated())
	require.ErrorIs(t, err, &Error{Kind: KindNotAuthenticated})
	require.NotErrorIs(t, err, &Error{Kind: KindSessionExpired})
}

func TestUnwrap(t *testing.T) {
	err := Transport(io.ErrUnexpectedEOF)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Contains(t, err.Error(), "[transport_error]")
	require.Contains(t, err.Error(), io.ErrUnexpectedEOF.Error())

	var target *Error
	require.True(t, errors.As(SessionLoad("bad json", nil), &target))
	require.Nil(t, target.Unwrap())
}

func TestEveryKindHasAnAction(t *testing.T) {
	for _, err := range []*Error{
		InvalidInput("limit must be at least 1, got %d", 0),
		NotAuthenticated(),
		SessionExpired("403"),
		Parse("thread", "no posts container"),
		Transport(io.EOF),
		TransportStatus(503),
		LoginUnsupported("challenge"),
		LoginFailed("bad password"),
		SessionLoad("empty", nil),
	} {
		require.NotEmpty(t, err.Message, err.Kind)
		require.NotEmpty(t, err.Action, err.Kind)
	}
	require.Equal(t, "limit must be at least 1, got 0", InvalidInput("limit must be at least 1, got %d", 0).Message)
}
