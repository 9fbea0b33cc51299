package checkout

import (
	"strings"

	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

// Form is the buyer's contact and shipping data.
type Form struct {
	CustomerName  string `json:"customerName" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"required,basicemail"`
	CustomerPhone string `json:"customerPhone" validate:"required"`
	Street        string `json:"street" validate:"required"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state" validate:"required"`
	ZipCode       string `json:"zipCode" validate:"required"`
	Country       string `json:"country" validate:"required"`
	Notes         string `json:"notes,omitempty"`
}

// Normalize trims surrounding whitespace from every field.
func (f Form) Normalize() Form {
	return Form{
		CustomerName:  strings.TrimSpace(f.CustomerName),
		CustomerEmail: strings.TrimSpace(f.CustomerEmail),
		CustomerPhone: strings.TrimSpace(f.CustomerPhone),
		Street:        strings.TrimSpace(f.Street),
		City:          strings.TrimSpace(f.City),
		State:         strings.TrimSpace(f.State),
		ZipCode:       strings.TrimSpace(f.ZipCode),
		Country:       strings.TrimSpace(f.Country),
		Notes:         strings.TrimSpace(f.Notes),
	}
}

// Validate checks the normalized form. The error is a utils.FieldErrors.
func (f Form) Validate() error {
	return utils.ValidateStruct(f.Normalize())
}

func (f Form) ShippingAddress() types.ShippingAddress {
	return types.ShippingAddress{
		Street:  f.Street,
		City:    f.City,
		State:   f.State,
		ZipCode: f.ZipCode,
		Country: f.Country,
	}
}
