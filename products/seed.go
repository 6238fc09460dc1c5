package products

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"petpet/models"
)

//go:embed catalog.yaml
var starterCatalog []byte

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	Name              string `yaml:"name"`
	Description       string `yaml:"description"`
	Price             string `yaml:"price"`
	OriginalPrice     string `yaml:"original_price"`
	Brand             string `yaml:"brand"`
	Stock             int    `yaml:"stock"`
	LowStockThreshold *int   `yaml:"low_stock_threshold"`
	Section           string `yaml:"section"`
	Category          string `yaml:"category"`
	Images            []struct {
		URL string `yaml:"url"`
		Alt string `yaml:"alt"`
	} `yaml:"images"`
}

func (p seedProduct) input() (Input, error) {
	in := Input{
		Name:              p.Name,
		Description:       p.Description,
		Brand:             p.Brand,
		StockQuantity:     p.Stock,
		LowStockThreshold: p.LowStockThreshold,
	}
	var err error
	if in.Price, err = decimal.NewFromString(p.Price); err != nil {
		return in, fmt.Errorf("price %q: %w", p.Price, err)
	}
	if p.OriginalPrice != "" {
		op, err := decimal.NewFromString(p.OriginalPrice)
		if err != nil {
			return in, fmt.Errorf("original price %q: %w", p.OriginalPrice, err)
		}
		in.OriginalPrice = decimal.NewNullDecimal(op)
	}
	if in.Section, err = models.ParseSection(p.Section); err != nil {
		return in, err
	}
	if in.Category, err = models.ParseCategory(p.Category); err != nil {
		return in, err
	}
	for _, img := range p.Images {
		in.Images = append(in.Images, ImageInput{ImageURL: img.URL, AltText: img.Alt})
	}
	return in, nil
}

// SeedCatalog loads the embedded starter catalog into an empty products
// table and reports how many products it created. A table that already holds
// any product, active or not, is left alone.
func (s *Service) SeedCatalog(ctx context.Context) (int, error) {
	var existing int
	if err := s.store.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&existing); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	var file seedFile
	if err := yaml.Unmarshal(starterCatalog, &file); err != nil {
		return 0, fmt.Errorf("parse starter catalog: %w", err)
	}

	created := 0
	for _, p := range file.Products {
		in, err := p.input()
		if err != nil {
			return created, fmt.Errorf("seed %q: %w", p.Name, err)
		}
		if _, err := s.Create(ctx, "seed", in); err != nil {
			return created, fmt.Errorf("seed %q: %w", p.Name, err)
		}
		created++
	}
	slog.Info("starter catalog seeded", "products", created)
	return created, nil
}
