package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsSetKind(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"validation", Validation("bad input", nil), KindValidation},
		{"notfound", NotFound("missing", nil), KindNotFound},
		{"conflict", Conflict("stale version", nil), KindConflict},
		{"fetch", Fetch("dial failed", nil), KindFetch},
		{"extract", Extract("parse failed", nil), KindExtract},
		{"annotator", Annotator("llm call failed", nil), KindAnnotator},
		{"storage", Storage("insert failed", nil), KindStorage},
		{"auth", Auth("bad token", nil), KindAuth},
		{"cancelled", Cancelled("job cancelled", nil), KindCancelled},
		{"internal", Internal("panic recovered", nil), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, tc.err.Kind)
			assert.Equal(t, KindOf(tc.err), tc.kind)
		})
	}
}

func TestErrorMessageIncludesWrappedError(t *testing.T) {
	wrapped := errors.New("connection refused")
	err := Fetch("fetch page", wrapped)

	msg := err.Error()
	assert.Contains(t, msg, "FetchError")
	assert.Contains(t, msg, "fetch page")
	assert.Contains(t, msg, "connection refused")
	assert.Equal(t, wrapped, errors.Unwrap(err))
}

func TestErrorMessageWithoutWrappedError(t *testing.T) {
	err := Validation("missing field", nil)
	assert.Equal(t, "ValidationError: missing field", err.Error())
}

func TestKindOfUnwrapsNestedErrors(t *testing.T) {
	inner := NotFound("source not found", nil)
	outer := fmt.Errorf("resolve library: %w", inner)

	assert.Equal(t, KindNotFound, KindOf(outer))
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain error")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation: 400,
		KindNotFound:   404,
		KindConflict:   409,
		KindAuth:       401,
		KindCancelled:  499,
		KindStorage:    500,
		KindFetch:      500,
		KindExtract:    500,
		KindAnnotator:  500,
		KindInternal:   500,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), "kind=%s", kind)
	}
}
