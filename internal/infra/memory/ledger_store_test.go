package memory

import (
	"testing"

	"quiz-ledger/internal/ledger"
	"quiz-ledger/internal/ledger/ledgertest"
)

func TestLedgerStoreSuite(t *testing.T) {
	ledgertest.RunStoreSuite(t, func(t *testing.T) ledger.Store {
		return NewLedgerStore()
	})
}
