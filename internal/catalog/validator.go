package catalog

// Package catalog provides seed file validation.

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gitshopapp/storefront/internal/models"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// IsValidSlug reports whether slug is lowercase words joined by single hyphens.
func IsValidSlug(slug string) bool {
	return slugRegex.MatchString(slug)
}

func (v *Validator) Validate(seed *SeedFile) error {
	if seed == nil {
		return fmt.Errorf("catalog is required")
	}

	if len(seed.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}

	slugs := make(map[string]bool)
	for i, item := range seed.Items {
		if err := v.validateItem(&item); err != nil {
			return fmt.Errorf("item %d validation failed: %w", i, err)
		}

		if slugs[item.Slug] {
			return fmt.Errorf("duplicate slug: %s", item.Slug)
		}
		slugs[item.Slug] = true
	}

	codes := make(map[string]bool)
	for i, coupon := range seed.Coupons {
		if err := v.validateCoupon(&coupon); err != nil {
			return fmt.Errorf("coupon %d validation failed: %w", i, err)
		}

		if codes[coupon.Code] {
			return fmt.Errorf("duplicate coupon code: %s", coupon.Code)
		}
		codes[coupon.Code] = true
	}

	return nil
}

func (v *Validator) validateItem(item *ItemConfig) error {
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("item title is required")
	}

	if !IsValidSlug(item.Slug) {
		return fmt.Errorf("item slug %q must be lowercase letters, digits and hyphens", item.Slug)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(item.Price))
	if err != nil {
		return fmt.Errorf("item price must be a decimal: %w", err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("item price must be positive")
	}

	if strings.TrimSpace(item.DiscountPrice) != "" {
		discount, err := decimal.NewFromString(strings.TrimSpace(item.DiscountPrice))
		if err != nil {
			return fmt.Errorf("item discount price must be a decimal: %w", err)
		}
		if !discount.IsPositive() || !discount.LessThan(price) {
			return fmt.Errorf("item discount price must be positive and below the price")
		}
	}

	switch models.ItemCategory(item.Category) {
	case models.CategoryShirt, models.CategorySportWear, models.CategoryOutwear:
	default:
		return fmt.Errorf("unsupported item category: %s", item.Category)
	}

	switch models.ItemLabel(item.Label) {
	case models.LabelPrimary, models.LabelSecondary, models.LabelDanger:
	default:
		return fmt.Errorf("unsupported item label: %s", item.Label)
	}

	return nil
}

func (v *Validator) validateCoupon(coupon *CouponConfig) error {
	if strings.TrimSpace(coupon.Code) == "" {
		return fmt.Errorf("coupon code is required")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(coupon.Amount))
	if err != nil {
		return fmt.Errorf("coupon amount must be a decimal: %w", err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("coupon amount must be positive")
	}

	return nil
}
