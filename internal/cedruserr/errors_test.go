package cedruserr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndKindOf(t *testing.T) {
	err := New(KindNotFound, "project missing")
	assert.EqualError(t, err, "not_found: project missing")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindStorage, "write entity", cause)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(KindStorage, "noop", nil))
}

func TestKindOfUnknownForPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestSentinels(t *testing.T) {
	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(ErrConflict))
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindBadRequest, "bad_request"},
		{KindPolicySetInvalid, "policy_set_invalid"},
		{Kind(255), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}
