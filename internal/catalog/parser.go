package catalog

// Package catalog provides catalog.yaml seed parsing and pricing.

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/gitshopapp/storefront/internal/models"
)

type SeedFile struct {
	Items   []ItemConfig   `yaml:"items"`
	Coupons []CouponConfig `yaml:"coupons"`
}

// ItemConfig keeps money as strings so YAML floats never touch a price.
type ItemConfig struct {
	Title         string `yaml:"title"`
	Price         string `yaml:"price"`
	DiscountPrice string `yaml:"discount_price"`
	Category      string `yaml:"category"`
	Label         string `yaml:"label"`
	Slug          string `yaml:"slug"`
	Description   string `yaml:"description"`
	Image         string `yaml:"image"`
}

type CouponConfig struct {
	Code   string `yaml:"code"`
	Amount string `yaml:"amount"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &seed, nil
}

func (p *Parser) ParseFromString(content string) (*SeedFile, error) {
	return p.Parse([]byte(content))
}

func (p *Parser) ParseFile(path string) (*SeedFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return p.Parse(content)
}

// ToItem converts a seed entry into a catalog item. Prices must already be validated.
func (c ItemConfig) ToItem() (models.Item, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(c.Price))
	if err != nil {
		return models.Item{}, fmt.Errorf("invalid price for %s: %w", c.Slug, err)
	}

	item := models.Item{
		Title:       strings.TrimSpace(c.Title),
		Price:       price,
		Category:    models.ItemCategory(c.Category),
		Label:       models.ItemLabel(c.Label),
		Slug:        strings.TrimSpace(c.Slug),
		Description: c.Description,
		Image:       c.Image,
	}

	if strings.TrimSpace(c.DiscountPrice) != "" {
		discount, err := decimal.NewFromString(strings.TrimSpace(c.DiscountPrice))
		if err != nil {
			return models.Item{}, fmt.Errorf("invalid discount price for %s: %w", c.Slug, err)
		}
		item.DiscountPrice = decimal.NewNullDecimal(discount)
	}

	return item, nil
}

func (c CouponConfig) ToCoupon() (models.Coupon, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Amount))
	if err != nil {
		return models.Coupon{}, fmt.Errorf("invalid amount for coupon %s: %w", c.Code, err)
	}
	return models.Coupon{Code: strings.TrimSpace(c.Code), Amount: amount}, nil
}
