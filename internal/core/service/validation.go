package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
)

func requirePrincipal(by *domain.Principal) error {
	if by == nil || by.ID == 0 {
		return &domain.ValidationError{Field: "performed_by", Reason: "is required"}
	}
	return nil
}

// requireText trims value and rejects blank or over-long input.
func requireText(field, value string, maxLen int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &domain.ValidationError{Field: field, Reason: "cannot be blank"}
	}
	if utf8.RuneCountInString(value) > maxLen {
		return "", &domain.ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("cannot exceed %d characters", maxLen),
		}
	}
	return value, nil
}

func validateLocation(location string) (string, error) {
	return requireText("storage_location", location, domain.MaxStorageLocationLength)
}

func validateQuantity(quantity int) error {
	if quantity < 0 {
		return &domain.ValidationError{Field: "quantity_on_pallet", Reason: "cannot be negative"}
	}
	return quantityInRange(quantity)
}

func quantityInRange(quantity int) error {
	if quantity < domain.MinQuantity || quantity > domain.MaxQuantity {
		return &domain.ValidationError{
			Field:  "quantity_on_pallet",
			Reason: fmt.Sprintf("must be between %d and %d", domain.MinQuantity, domain.MaxQuantity),
		}
	}
	return nil
}
