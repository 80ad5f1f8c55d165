package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Age      int    `json:"age" validate:"gte=18"`
}

type indexPayload struct {
	Paths []string `mapstructure:"paths" validate:"required,min=1,dive,required"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Username: "alice",
		Email:    "alice@example.com",
		Age:      20,
	}

	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Username: "",
		Email:    "invalid",
		Age:      10,
	}

	err := ValidateStruct(payload)
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 3)

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	require.Equal(t, "required", fields["username"])
	require.Equal(t, "email", fields["email"])
	require.Equal(t, "gte", fields["age"])
}

func TestValidateStructUsesMapstructureNames(t *testing.T) {
	err := ValidateStruct(indexPayload{})
	require.Error(t, err)

	vErrs := err.(ValidationErrors)
	require.Equal(t, "paths", vErrs[0].Field)
}

func TestValidateVar(t *testing.T) {
	require.NoError(t, ValidateVar("192.168.0.1", "ip"))
	require.NoError(t, ValidateVar("2001:db8::1", "ip"))

	err := ValidateVar("not-an-ip", "ip")
	require.Error(t, err)
	vErrs := err.(ValidationErrors)
	require.Equal(t, "ip", vErrs[0].Tag)
	require.Equal(t, "not-an-ip", vErrs[0].Value)
}

func TestKnownTag(t *testing.T) {
	require.True(t, KnownTag("url"))
	require.False(t, KnownTag("definitely_not_a_tag"))
}

func TestRegisterValidation(t *testing.T) {
	require.NoError(t, RegisterValidation("listing_ref", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) == 8
	}))
	require.NoError(t, ValidateVar("ABCDEFGH", "listing_ref"))
	require.Error(t, ValidateVar("ABC", "listing_ref"))
}
