package account

import (
	"fmt"

	"github.com/fillmorejl/async-transaction-engine/internal/money"
)

type ClientID uint16

type TxID uint32

const (
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
	KindDispute    = "dispute"
	KindResolve    = "resolve"
	KindChargeback = "chargeback"
)

// Transaction is one ledger event. Amount is meaningful only for deposits
// and withdrawals.
type Transaction struct {
	Kind   string
	Client ClientID
	Tx     TxID
	Amount money.Amount
}

func ValidKind(kind string) bool {
	switch kind {
	case KindDeposit, KindWithdrawal, KindDispute, KindResolve, KindChargeback:
		return true
	}
	return false
}

func (t Transaction) String() string {
	return fmt.Sprintf("%s client=%d tx=%d", t.Kind, t.Client, t.Tx)
}
