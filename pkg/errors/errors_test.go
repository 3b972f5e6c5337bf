// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CarriesCodeAndFields(t *testing.T) {
	err := pudimerr.New(
		pudimerr.CodeCacheReadFailure,
		"reading cached stats",
		pudimerr.FieldUsername("octocat"),
		pudimerr.FieldKey("pudim:github:octocat"),
	)
	require.Error(t, err)

	assert.Equal(t, pudimerr.CodeCacheReadFailure, pudimerr.CodeOf(err))

	fields := pudimerr.FieldsOf(err)
	assert.Equal(t, "octocat", fields["username"])
	assert.Equal(t, "pudim:github:octocat", fields["key"])
}

func TestWrap_NilPassesThrough(t *testing.T) {
	assert.NoError(t, pudimerr.Wrap(nil, pudimerr.CodeStoreWriteFailure, "saving score"))
	assert.NoError(t, pudimerr.Wrapf(nil, pudimerr.CodeStoreWriteFailure, "saving score"))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := pudimerr.Wrap(cause, pudimerr.CodeCacheConnectFailure, "dialing cache")

	require.Error(t, err)
	assert.Equal(t, pudimerr.CodeCacheConnectFailure, pudimerr.CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, pudimerr.Code(""), pudimerr.CodeOf(stderrors.New("plain")))
	assert.Equal(t, pudimerr.Code(""), pudimerr.CodeOf(nil))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"not found", pudimerr.New(pudimerr.CodeGitHubUserNotFound, "no such user"), pudimerr.IsNotFound, true},
		{"rate limited", pudimerr.New(pudimerr.CodeGitHubRateLimited, "quota exhausted"), pudimerr.IsRateLimited, true},
		{"timeout", pudimerr.New(pudimerr.CodeGitHubTimeout, "deadline exceeded"), pudimerr.IsTimeout, true},
		{"upstream", pudimerr.New(pudimerr.CodeGitHubUpstreamFailure, "HTTP 502"), pudimerr.IsUpstreamFailure, true},
		{"network", pudimerr.New(pudimerr.CodeGitHubNetworkFailure, "unreachable"), pudimerr.IsNetworkFailure, true},
		{"dns is network", pudimerr.New(pudimerr.CodeGitHubDNSFailure, "no such host"), pudimerr.IsNetworkFailure, true},
		{"invalid config", pudimerr.New(pudimerr.CodeConfigValidateInvalidValue, "bad ttl"), pudimerr.IsInvalidInput, true},
		{"not found is not timeout", pudimerr.New(pudimerr.CodeGitHubUserNotFound, "no such user"), pudimerr.IsTimeout, false},
		{"store write is not upstream", pudimerr.New(pudimerr.CodeStoreWriteFailure, "put failed"), pudimerr.IsUpstreamFailure, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", pudimerr.New(pudimerr.CodeGitHubUserNotFound, "x"), http.StatusNotFound},
		{"rate limited", pudimerr.New(pudimerr.CodeGitHubRateLimited, "x"), http.StatusTooManyRequests},
		{"timeout", pudimerr.New(pudimerr.CodeGitHubTimeout, "x"), http.StatusGatewayTimeout},
		{"upstream", pudimerr.New(pudimerr.CodeGitHubUpstreamFailure, "x"), http.StatusBadGateway},
		{"network", pudimerr.New(pudimerr.CodeGitHubNetworkFailure, "x"), http.StatusBadGateway},
		{"invalid", pudimerr.New(pudimerr.CodeServerRequestInvalid, "x"), http.StatusBadRequest},
		{"fallback", pudimerr.New(pudimerr.CodeStoreWriteFailure, "x"), http.StatusInternalServerError},
		{"plain error", stderrors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pudimerr.HTTPStatus(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := pudimerr.Errorf(pudimerr.CodeStoreQueryFailure, "scan failed after %d items", 42)

	assert.True(t, pudimerr.HasCode(err, pudimerr.CodeStoreQueryFailure))
	assert.False(t, pudimerr.HasCode(err, pudimerr.CodeStoreWriteFailure))
	assert.False(t, pudimerr.HasCode(nil, pudimerr.CodeStoreQueryFailure))
}

func TestJoin(t *testing.T) {
	e1 := stderrors.New("first")
	e2 := stderrors.New("second")

	joined := pudimerr.Join(e1, e2)
	require.Error(t, joined)
	assert.ErrorIs(t, joined, e1)
	assert.ErrorIs(t, joined, e2)
}
