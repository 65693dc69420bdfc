package evaluation

import (
	"errors"
	"strings"
)

const notSpecified = "Not specified"

// Normalize trims free-text fields and fills optional ones the service expects.
func (p Product) Normalize() Product {
	p.Name = strings.TrimSpace(p.Name)
	p.Brand = strings.TrimSpace(p.Brand)
	p.Category = strings.TrimSpace(p.Category)
	p.Description = strings.TrimSpace(p.Description)
	p.Ingredients = strings.TrimSpace(p.Ingredients)
	if p.Ingredients == "" {
		p.Ingredients = notSpecified
	}
	p.Reviews = strings.TrimSpace(p.Reviews)
	if p.Reviews == "" {
		p.Reviews = notSpecified
	}
	if p.Rating != nil && *p.Rating == 0 {
		p.Rating = nil
	}
	return p
}

// Validate enforces the required product fields.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	if strings.TrimSpace(p.Brand) == "" {
		return errors.New("product brand is required")
	}
	if p.Price <= 0 {
		return errors.New("product price must be greater than 0")
	}
	if p.Rating != nil && (*p.Rating < 0 || *p.Rating > 5) {
		return errors.New("product rating must be between 0 and 5")
	}
	return nil
}

// Specified reports whether a free-text field carries real content.
func Specified(field string) bool {
	field = strings.TrimSpace(field)
	return field != "" && field != notSpecified
}
