package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	identity "github.com/encorehq/go-identity"
)

func TestNormalizePhone(t *testing.T) {
	t.Run("valid E.164 number passes through", func(t *testing.T) {
		phone, err := identity.NormalizePhone("+447700900123")
		assert.NoError(t, err)
		assert.Equal(t, "+447700900123", phone)
	})

	t.Run("formatting is stripped", func(t *testing.T) {
		phone, err := identity.NormalizePhone("+44 7700 900123")
		assert.NoError(t, err)
		assert.Equal(t, "+447700900123", phone)
	})

	t.Run("surrounding whitespace is ignored", func(t *testing.T) {
		phone, err := identity.NormalizePhone("  +14155552671 ")
		assert.NoError(t, err)
		assert.Equal(t, "+14155552671", phone)
	})

	t.Run("missing country code is rejected", func(t *testing.T) {
		_, err := identity.NormalizePhone("447700900123")
		assert.Error(t, err)
		assert.True(t, identity.IsInvalidInput(err))
	})

	t.Run("short number is rejected", func(t *testing.T) {
		_, err := identity.NormalizePhone("+4477")
		assert.Error(t, err)
		assert.True(t, identity.IsInvalidInput(err))
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := identity.NormalizePhone("not a number")
		assert.Error(t, err)
		assert.True(t, identity.IsInvalidInput(err))
	})
}
