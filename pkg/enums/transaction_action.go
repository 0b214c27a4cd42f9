package enums

import "fmt"

// TransactionAction distinguishes ledger credits from debits.
type TransactionAction string

const (
	TransactionActionTopup TransactionAction = "topup"
	TransactionActionSpend TransactionAction = "spend"
)

var validTransactionActions = []TransactionAction{
	TransactionActionTopup,
	TransactionActionSpend,
}

// IsValid reports whether the value matches the canonical action enum.
func (a TransactionAction) IsValid() bool {
	for _, candidate := range validTransactionActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseTransactionAction converts raw input into TransactionAction.
func ParseTransactionAction(value string) (TransactionAction, error) {
	for _, candidate := range validTransactionActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction action %q", value)
}
