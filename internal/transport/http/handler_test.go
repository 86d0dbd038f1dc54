package http

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/merchantbook/ledger-service/internal/ledger"
	"github.com/merchantbook/ledger-service/internal/repo"
	"github.com/merchantbook/ledger-service/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestRecordStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, recordStatus(ledger.ErrUnknownType))
	assert.Equal(t, http.StatusUnprocessableEntity, recordStatus(ledger.ErrUnknownPaymentMethod))
	assert.Equal(t, http.StatusUnprocessableEntity, recordStatus(ledger.ErrInvalidAmount))
	assert.Equal(t, http.StatusUnprocessableEntity, recordStatus(ledger.ErrInvalidRemainingAmount))

	// a lost optimistic-lock race is retryable, not a bad request
	assert.Equal(t, http.StatusConflict, recordStatus(repo.ErrVersionConflict))
	assert.Equal(t, http.StatusConflict, recordStatus(fmt.Errorf("update balance: %w", repo.ErrVersionConflict)))
	assert.Equal(t, http.StatusConflict, recordStatus(service.ErrCustomerMismatch))

	assert.Equal(t, http.StatusBadRequest, recordStatus(fmt.Errorf("boom")))
}
