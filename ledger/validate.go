package ledger

import "strings"

// ValidateTrade checks the inputs shared by Purchase and Sell.
func ValidateTrade(item ItemName, user UserID, count int) error {
	if err := validateItem(item); err != nil {
		return err
	}
	if strings.TrimSpace(string(user)) == "" {
		return &ValidationError{Field: "id", Message: "must not be empty"}
	}
	if count <= 0 {
		return &ValidationError{Field: "count", Message: "must be greater than 0"}
	}
	return nil
}

// ValidateRecordSell checks the inputs of SellSpecificRecord.
func ValidateRecordSell(item ItemName, id LogID) error {
	if err := validateItem(item); err != nil {
		return err
	}
	if strings.TrimSpace(string(id)) == "" {
		return &ValidationError{Field: "log_id", Message: "must not be empty"}
	}
	return nil
}

func validateItem(item ItemName) error {
	if strings.TrimSpace(string(item)) == "" {
		return &ValidationError{Field: "item_name", Message: "must not be empty"}
	}
	return nil
}
