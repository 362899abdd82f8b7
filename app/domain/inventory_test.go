package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsReservationRejection(t *testing.T) {
	assert.True(t, IsReservationRejection(fmt.Errorf("%w: product 7", ErrInsufficientStock)))
	assert.True(t, IsReservationRejection(ErrReservationClosed))
	assert.True(t, IsReservationRejection(fmt.Errorf("%w: no inventory", ErrNotFound)))

	assert.False(t, IsReservationRejection(nil))
	assert.False(t, IsReservationRejection(ErrVersionMismatch))
	assert.False(t, IsReservationRejection(errors.New("connection reset")))
}
