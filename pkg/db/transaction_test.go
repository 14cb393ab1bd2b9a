package db

import (
	"errors"
	"testing"

	apperrors "consultbook/pkg/errors"
)

func TestTxError(t *testing.T) {
	if TxError(nil) != nil {
		t.Errorf("TxError(nil) should be nil")
	}

	conflict := apperrors.Conflict("SLOT_TAKEN", "slot already booked")
	if got := TxError(conflict); got != conflict {
		t.Errorf("domain error should pass through unchanged, got %v", got)
	}

	driver := errors.New("write conflict")
	got := TxError(driver)
	if !errors.Is(got, driver) || got.Error() != "transaction failed: write conflict" {
		t.Errorf("TxError(driver) = %v", got)
	}
}
