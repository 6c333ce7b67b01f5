package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

type sample struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"min=4"`
	Confirm  string `json:"confirm" validate:"eqfield=Password"`
	Role     string `json:"role,omitempty" validate:"omitempty,role"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{Username: "ab", Password: "secret", Confirm: "secret"})
	require.ErrorIs(t, err, domain.ErrValidation)

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "username", ve.Field)
	assert.Equal(t, "must be at least 3 characters", ve.Reason)
}

func TestStructCustomTags(t *testing.T) {
	require.NoError(t, Struct(sample{Username: "abc", Password: "pass", Confirm: "pass", Role: "insured"}))

	err := Struct(sample{Username: "abc", Password: "pass", Confirm: "pass", Role: "OWNER"})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "role", ve.Field)

	err = Struct(sample{Username: "abc", Password: "pass", Confirm: "nope"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "confirm", ve.Field)
	assert.Equal(t, "does not match", ve.Reason)
}
