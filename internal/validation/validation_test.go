package validation_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newmedica/storefront/internal/validation"
)

type sampleForm struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Other   bool   `json:"other"`
	Billing string `json:"billing" validate:"required_if=Other true"`
	Code    string `json:"code" validate:"omitempty,min=3"`
}

func TestStruct_Valid(t *testing.T) {
	err := validation.Struct(sampleForm{Name: "a", Email: "a@example.com"}, nil)
	require.NoError(t, err)
}

func TestStruct_FieldMessages(t *testing.T) {
	err := validation.Struct(sampleForm{Email: "broken", Code: "ab"}, map[string]string{
		"name": "Name is required",
	})
	require.Error(t, err)

	vErr, ok := validation.AsError(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, "Name is required", vErr.Field("name"))
	assert.Equal(t, "Invalid email format", vErr.Field("email"))
	assert.Equal(t, "Must be at least 3 characters", vErr.Field("code"))
	assert.Empty(t, vErr.Field("billing"))
}

func TestStruct_RequiredIf(t *testing.T) {
	err := validation.Struct(sampleForm{Name: "a", Email: "a@example.com", Other: true}, nil)

	vErr, ok := validation.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "This field is required", vErr.Field("billing"))
	assert.Len(t, vErr.Fields, 1)
	assert.Contains(t, vErr.Error(), "billing: This field is required")
}
