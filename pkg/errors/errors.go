// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package errors provides code-tagged errors for the scoring service.
// Every error crossing a package boundary carries a machine-readable
// Code plus structured fields, built on samber/oops.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeCacheConnectFailure Code = "cache.connect.failure"
	CodeCacheReadFailure    Code = "cache.read.failure"
	CodeCacheWriteFailure   Code = "cache.write.failure"

	CodeGitHubUserNotFound    Code = "github.user.not_found"
	CodeGitHubRateLimited     Code = "github.quota.rate_limited"
	CodeGitHubUpstreamFailure Code = "github.upstream.failure"
	CodeGitHubRequestFailure  Code = "github.request.failure"
	CodeGitHubNetworkFailure  Code = "github.network.unreachable"
	CodeGitHubDNSFailure      Code = "github.network.dns_failure"
	CodeGitHubTimeout         Code = "github.request.timeout"
	CodeGitHubUnknownFailure  Code = "github.unknown.failure"

	CodeStoreSchemaFailure Code = "store.schema.failure"
	CodeStoreWriteFailure  Code = "store.write.failure"
	CodeStoreQueryFailure  Code = "store.query.failure"

	CodeConfigLoadFailure          Code = "config.load.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldUsername(value string) Attr {
	return Field("username", value)
}

func FieldKey(value string) Attr {
	return Field("key", value)
}

func FieldOperation(value string) Attr {
	return Field("operation", value)
}

func FieldTable(value string) Attr {
	return Field("table", value)
}

func FieldStatus(value int) Attr {
	return Field("status", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf extracts the Code from an error chain, or "" when the error
// does not carry one.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

// FieldsOf returns the structured fields attached to an error chain.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsRateLimited(err error) bool {
	return reason(CodeOf(err)) == "rate_limited"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func IsNetworkFailure(err error) bool {
	return strings.Contains(string(CodeOf(err)), "network")
}

// HTTPStatus maps an error to the HTTP status the API surface should emit.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsRateLimited(err):
		return http.StatusTooManyRequests
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err), IsNetworkFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

// reason returns the final dot-separated segment of a code, which names
// the failure reason independent of the subsystem.
func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
