package productform

import (
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-admin/internal/domain/product"
)

// Rule is a single constraint on a raw field value: a validator tag and the
// message shown when the tag does not hold.
type Rule struct {
	Tag     string
	Message string
}

// FieldRules binds an ordered rule list to a field.
type FieldRules struct {
	Field Field
	Rules []Rule
}

// Schema evaluates field rules. Fields are independent of each other; within
// a field the first failing rule wins.
type Schema struct {
	validate *validator.Validate
	order    []Field
	rules    map[Field][]Rule
}

// Bounds of the numeric fields, matching the NUMERIC(12,2) price and INTEGER
// stock columns.
const (
	PriceScale = 2
	MaxStock   = math.MaxInt32
)

// MaxPrice is the largest price the catalog stores.
var MaxPrice = decimal.RequireFromString("9999999999.99")

// NewSchema builds a Schema from the given field rules. Besides the built-in
// validator tags, rules may use positive_decimal, price_scale, max_price,
// nonneg_int and max_stock.
func NewSchema(fields []FieldRules) *Schema {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "positive_decimal", decimalRule(decimal.Decimal.IsPositive))
	mustRegister(v, "price_scale", decimalRule(func(d decimal.Decimal) bool {
		return d.Equal(d.Truncate(PriceScale))
	}))
	mustRegister(v, "max_price", decimalRule(func(d decimal.Decimal) bool {
		return d.LessThanOrEqual(MaxPrice)
	}))
	mustRegister(v, "nonneg_int", decimalRule(func(d decimal.Decimal) bool {
		return d.IsInteger() && !d.IsNegative()
	}))
	mustRegister(v, "max_stock", decimalRule(func(d decimal.Decimal) bool {
		return d.LessThanOrEqual(decimal.NewFromInt(MaxStock))
	}))

	s := &Schema{
		validate: v,
		order:    make([]Field, 0, len(fields)),
		rules:    make(map[Field][]Rule, len(fields)),
	}
	for _, f := range fields {
		s.order = append(s.order, f.Field)
		s.rules[f.Field] = f.Rules
	}
	return s
}

// decimalRule fails values that do not parse as a decimal and otherwise
// applies ok.
func decimalRule(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && ok(d)
	}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// DefaultSchema returns the product rules used by the admin dashboard.
func DefaultSchema() *Schema {
	categories := make([]string, len(product.Categories))
	for i, c := range product.Categories {
		categories[i] = string(c)
	}

	const (
		nameMsg        = "Product name must be at least 2 characters."
		priceMsg       = "Price must be a positive number."
		skuMsg         = "SKU must be at least 3 characters."
		stockMsg       = "Stock must be a non-negative integer."
		descriptionMsg = "Description must be at least 10 characters."
	)

	return NewSchema([]FieldRules{
		{Field: FieldName, Rules: []Rule{{Tag: "min=2", Message: nameMsg}}},
		{Field: FieldPrice, Rules: []Rule{
			{Tag: "required", Message: priceMsg},
			{Tag: "positive_decimal", Message: priceMsg},
			{Tag: "price_scale", Message: "Price can have at most 2 decimal places."},
			{Tag: "max_price", Message: "Price must be at most 9999999999.99."},
		}},
		{Field: FieldSKU, Rules: []Rule{{Tag: "min=3", Message: skuMsg}}},
		{Field: FieldStock, Rules: []Rule{
			{Tag: "required", Message: stockMsg},
			{Tag: "nonneg_int", Message: stockMsg},
			{Tag: "max_stock", Message: "Stock must be at most 2147483647."},
		}},
		{Field: FieldDescription, Rules: []Rule{{Tag: "min=10", Message: descriptionMsg}}},
		{Field: FieldCategory, Rules: []Rule{
			{Tag: "required", Message: "Please select a category."},
			{Tag: "oneof=" + strings.Join(categories, " "), Message: "Please select a valid category."},
		}},
	})
}

// Has reports whether the schema governs field.
func (s *Schema) Has(field Field) bool {
	_, ok := s.rules[field]
	return ok
}

// Fields returns the governed fields in declaration order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.order...)
}

// ValidateField checks one raw value. It returns nil when every rule holds.
func (s *Schema) ValidateField(field Field, value string) *FieldValidationError {
	for _, r := range s.rules[field] {
		if err := s.validate.Var(value, r.Tag); err != nil {
			return &FieldValidationError{Field: field, Reason: r.Message}
		}
	}
	return nil
}

// Validate checks every governed field. Missing values are validated as
// empty strings.
func (s *Schema) Validate(values map[Field]string) []*FieldValidationError {
	var errs []*FieldValidationError
	for _, field := range s.order {
		if err := s.ValidateField(field, values[field]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
