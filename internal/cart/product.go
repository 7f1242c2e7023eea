package cart

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Product is the strict internal shape of a catalog product. Only
// NormalizeProduct produces it from catalog payloads.
type Product struct {
	ID         string
	NameEn     string
	NameAr     string
	BasePrice  float64
	FinalPrice float64
	Image      string
}

// RawProduct mirrors the catalog payload, whose field names vary between
// endpoints and product generations.
type RawProduct struct {
	ID            string     `json:"id"`
	MongoID       string     `json:"_id"`
	ProductName   string     `json:"productName"`
	NameEn        string     `json:"nameEn"`
	Name          string     `json:"name"`
	NameAr        string     `json:"nameAr"`
	FinalPrice    LooseFloat `json:"finalPrice"`
	SalePrice     LooseFloat `json:"salePrice"`
	Price         LooseFloat `json:"price"`
	OriginalPrice LooseFloat `json:"originalPrice"`
	Image         string     `json:"image"`
	Images        []string   `json:"images"`
	ImageURL      string     `json:"imageUrl"`
}

// NormalizeProduct collapses every fallback chain of RawProduct.
func NormalizeProduct(raw RawProduct) Product {
	p := Product{
		ID:     firstNonEmpty(raw.ID, raw.MongoID),
		NameEn: firstNonEmpty(raw.ProductName, raw.NameEn, raw.Name),
		NameAr: raw.NameAr,
		Image:  raw.Image,
	}
	if p.NameAr == "" {
		p.NameAr = p.NameEn
	}
	if p.Image == "" && len(raw.Images) > 0 {
		p.Image = raw.Images[0]
	}
	if p.Image == "" {
		p.Image = raw.ImageURL
	}

	p.FinalPrice = firstPositive(raw.FinalPrice, raw.SalePrice, raw.Price)
	p.BasePrice = firstPositive(raw.OriginalPrice, raw.Price, raw.FinalPrice)
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...LooseFloat) float64 {
	for _, v := range values {
		if v > 0 {
			return float64(v)
		}
	}
	return 0
}

// LooseFloat accepts a JSON number, a numeric string, or null. Anything
// unparseable or non-finite ("NaN", "Infinity") decodes to 0.
type LooseFloat float64

func (f *LooseFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	text := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = 0
			return nil
		}
		text = strings.TrimSpace(s)
	}
	*f = LooseFloat(parseFinite(text))
	return nil
}

func parseFinite(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
