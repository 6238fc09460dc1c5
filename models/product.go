package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// prices go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

type Section int

const (
	SectionCats  Section = 1
	SectionDogs  Section = 2
	SectionOther Section = 3
)

var sectionNames = map[Section]string{
	SectionCats:  "Cats",
	SectionDogs:  "Dogs",
	SectionOther: "Other",
}

func (s Section) Valid() bool {
	_, ok := sectionNames[s]
	return ok
}

func (s Section) String() string {
	if n, ok := sectionNames[s]; ok {
		return n
	}
	return "Section(" + strconv.Itoa(int(s)) + ")"
}

type Category int

const (
	CategoryToys        Category = 1
	CategoryFood        Category = 2
	CategoryLitters     Category = 3
	CategoryMedicines   Category = 4
	CategoryAccessories Category = 5
	CategoryGrooming    Category = 6
)

var categoryNames = map[Category]string{
	CategoryToys:        "Toys",
	CategoryFood:        "Food",
	CategoryLitters:     "Litters",
	CategoryMedicines:   "Medicines",
	CategoryAccessories: "Accessories",
	CategoryGrooming:    "Grooming",
}

// CategoryCount is the number of product categories the shop knows about.
const CategoryCount = 6

func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return "Category(" + strconv.Itoa(int(c)) + ")"
}

type ProductState int

const (
	StateOutOfStock ProductState = 0
	StateInStock    ProductState = 1
	StateNewProduct ProductState = 2
)

var stateNames = map[ProductState]string{
	StateOutOfStock: "OutOfStock",
	StateInStock:    "InStock",
	StateNewProduct: "NewProduct",
}

func (s ProductState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

func (s ProductState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "ProductState(" + strconv.Itoa(int(s)) + ")"
}

// ParseSection, ParseCategory and ParseProductState accept either the
// numeric value or the name, case-insensitively.
func ParseSection(v string) (Section, error) {
	n, err := parseEnum(v, toNames(sectionNames))
	return Section(n), err
}

func ParseCategory(v string) (Category, error) {
	n, err := parseEnum(v, toNames(categoryNames))
	return Category(n), err
}

func ParseProductState(v string) (ProductState, error) {
	n, err := parseEnum(v, toNames(stateNames))
	return ProductState(n), err
}

func toNames[K ~int](m map[K]string) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[int(k)] = v
	}
	return out
}

func parseEnum(v string, names map[int]string) (int, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		if _, ok := names[n]; ok {
			return n, nil
		}
		return 0, fmt.Errorf("unknown value %d", n)
	}
	for n, name := range names {
		if strings.EqualFold(name, v) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unknown value %q", v)
}

type Product struct {
	ID                int64               `json:"id"`
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	Price             decimal.Decimal     `json:"price"`
	OriginalPrice     decimal.NullDecimal `json:"originalPrice"`
	Brand             string              `json:"brand"`
	StockQuantity     int                 `json:"stockQuantity"`
	LowStockThreshold int                 `json:"lowStockThreshold"`
	Section           Section             `json:"section"`
	Category          Category            `json:"category"`
	State             ProductState        `json:"state"`
	IsActive          bool                `json:"isActive"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         *time.Time          `json:"updatedAt"`
	Images            []ProductImage      `json:"images"`
}

type ProductImage struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"-"`
	ImageURL     string `json:"imageUrl"`
	AltText      string `json:"altText"`
	DisplayOrder int    `json:"displayOrder"`
	IsPrimary    bool   `json:"isPrimary"`
}

// PrimaryImageURL returns the flagged primary image, else the first image,
// else "".
func (p *Product) PrimaryImageURL() string {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img.ImageURL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].ImageURL
	}
	return ""
}
