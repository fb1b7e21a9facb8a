package importer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/drstein77/groceryweb/internal/models"
	"github.com/go-playground/validator/v10"
)

// Field limits shared by CSV rows and the manual entry form.
const (
	MaxName     = 200
	MaxCategory = 100
	MaxQuantity = math.MaxInt32
)

var validate = validator.New()

// ValidationError describes why a single product was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err was caused by bad input rather than a failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type productRow struct {
	Name     string  `validate:"required,max=200"`
	Category string  `validate:"max=100"`
	Price    float64 `validate:"gte=0"`
	Quantity int     `validate:"gte=0,lte=2147483647"`
}

// ValidateInput trims and parses raw field values into a product ready
// to be stored.
func ValidateInput(in models.ProductInput) (models.Product, error) {
	row := productRow{
		Name:     strings.TrimSpace(in.Name),
		Category: strings.TrimSpace(in.Category),
	}
	if err := checkText("name", row.Name); err != nil {
		return models.Product{}, err
	}
	if err := checkText("category", row.Category); err != nil {
		return models.Product{}, err
	}

	price, err := parsePrice(in.Price)
	if err != nil {
		return models.Product{}, err
	}
	row.Price = price

	quantity, err := parseQuantity(in.Quantity)
	if err != nil {
		return models.Product{}, err
	}
	row.Quantity = quantity

	if err := validate.Struct(row); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return models.Product{}, &ValidationError{Reason: describe(fieldErrs[0])}
		}
		return models.Product{}, fmt.Errorf("failed to validate product: %w", err)
	}

	return models.Product{
		Name:     row.Name,
		Category: row.Category,
		Price:    row.Price,
		Quantity: row.Quantity,
	}, nil
}

func parsePrice(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ValidationError{Reason: "price is required"}
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, &ValidationError{Reason: fmt.Sprintf("price %q is not a number", raw)}
	}
	return p, nil
}

// parseQuantity treats a blank value as zero.
func parseQuantity(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	q, err := strconv.ParseInt(raw, 10, 32)
	if errors.Is(err, strconv.ErrRange) {
		return 0, &ValidationError{Reason: fmt.Sprintf("quantity must be <= %d", MaxQuantity)}
	}
	if err != nil {
		return 0, &ValidationError{Reason: fmt.Sprintf("quantity %q is not a whole number", raw)}
	}
	return int(q), nil
}

// checkText rejects text the database cannot store.
func checkText(field, s string) error {
	if !utf8.ValidString(s) {
		return &ValidationError{Reason: field + " is not valid UTF-8"}
	}
	if strings.ContainsRune(s, 0) {
		return &ValidationError{Reason: field + " contains a NUL character"}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s is too long (max %s characters)", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
