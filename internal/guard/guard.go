package guard

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/money"
	"github.com/noah-isme/pricecore/internal/rates"
)

// percentMax is 100% expressed in the scaled integer form the validator sees.
const percentMax = 100 * 10_000

// Guard rejects malformed requests before any monetary computation. It never corrects input.
//
// Struct tags available in addition to the validator built-ins:
//   - region:   value is a supported region code
//   - category: value is a known tax category
//   - percent:  money.Percent within [0, 100]
//
// money.Money fields are validated as their minor-unit integer, so `gte=0` means non-negative.
type Guard struct {
	v *validator.Validate
}

// New builds a Guard with the pricing validators registered.
func New() *Guard {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if m, ok := field.Interface().(money.Money); ok {
			return m.Minor()
		}
		return nil
	}, money.Money{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if p, ok := field.Interface().(money.Percent); ok {
			return p.Decimal().Shift(money.PercentScale).IntPart()
		}
		return nil
	}, money.Percent{})
	mustRegister(v, "region", func(fl validator.FieldLevel) bool {
		return rates.KnownRegion(fl.Field().String())
	})
	mustRegister(v, "category", func(fl validator.FieldLevel) bool {
		_, ok := rates.ParseCategory(fl.Field().String())
		return ok
	})
	mustRegister(v, "percent", func(fl validator.FieldLevel) bool {
		scaled := fl.Field().Int()
		return scaled >= 0 && scaled <= percentMax
	})
	return &Guard{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Errorf("register %s validation: %w", tag, err))
	}
}

// Check validates s and returns the first violation as a ValidationFailed error.
func (g *Guard) Check(s any) error {
	err := g.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &common.Error{Kind: common.KindValidationFailed, Reason: "invalid request", Err: err}
	}
	fe := fieldErrs[0]
	return &common.Error{
		Kind:   common.KindValidationFailed,
		Field:  fieldPath(fe.Namespace()),
		Value:  fe.Value(),
		Reason: reason(fe),
	}
}

// fieldPath drops the root struct name: "Request.items[0].quantity" -> "items[0].quantity".
func fieldPath(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return "must be at least " + fe.Param()
	case "gte":
		return "must not be negative"
	case "region":
		return "unsupported region"
	case "category":
		return "unknown category"
	case "percent":
		return "percentage must be within [0, 100]"
	case "iso4217":
		return "unsupported currency"
	case "unique":
		return "duplicate " + strings.ToLower(fe.Param())
	default:
		if fe.Param() != "" {
			return fe.Tag() + "=" + fe.Param()
		}
		return fe.Tag()
	}
}
