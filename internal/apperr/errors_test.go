package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("resolve: %w", NotFound("person", int64(4)))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "resolve: person 4 not found", err.Error())
}

func TestStorageDoesNotDoubleWrap(t *testing.T) {
	inner := errors.New("disk full")
	err := Storage("apply", Storage("insert", inner))
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert", se.Op)
	assert.ErrorIs(t, err, inner)
	assert.NoError(t, Storage("noop", nil))
}

func TestFromValidatorUsesJSONNames(t *testing.T) {
	type inner struct {
		Title string `json:"title" validate:"required"`
	}
	type outer struct {
		Interaction *inner `json:"interaction_data" validate:"omitempty"`
	}

	err := FromValidator(NewValidator().Struct(outer{Interaction: &inner{}}))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "interaction_data.title", ve.Field)
	assert.Contains(t, ve.Message, "required")

	other := errors.New("other")
	assert.Same(t, other, FromValidator(other))
}
