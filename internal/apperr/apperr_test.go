package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := ErrInsufficientStock.With("product %s does not have enough stock", "Phone 128GB")

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrPriceChanged))
	assert.Equal(t, "product Phone 128GB does not have enough stock", err.Error())
}

func TestIsThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("checkout: %w", ErrEmptyCart)

	assert.True(t, errors.Is(err, ErrEmptyCart))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "empty_cart", CodeOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrOrderNotFound.Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal_error", CodeOf(err))
	assert.Equal(t, "internal", KindInternal.String())
	assert.Equal(t, "conflict", KindOf(ErrCouponLimitReached).String())
}
