package enums

import (
	"fmt"
	"strings"
)

// TransactionType categorizes credit ledger entries.
type TransactionType string

const (
	TransactionTypeConsumption         TransactionType = "consumption"
	TransactionTypePlanRenewal         TransactionType = "plan_renewal"
	TransactionTypeSubscriptionRenewal TransactionType = "subscription_renewal"
	TransactionTypeBonusPurchase       TransactionType = "bonus_purchase"
	TransactionTypeAdminAdjustment     TransactionType = "admin_adjustment"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeConsumption,
	TransactionTypePlanRenewal,
	TransactionTypeSubscriptionRenewal,
	TransactionTypeBonusPurchase,
	TransactionTypeAdminAdjustment,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
