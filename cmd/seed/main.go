package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/bloomhouse/cartsync/config"
	"github.com/bloomhouse/cartsync/internal/app/model"
	"github.com/bloomhouse/cartsync/internal/app/repository"
	"github.com/bloomhouse/cartsync/internal/app/service"
	"github.com/bloomhouse/cartsync/internal/db"
	"github.com/bloomhouse/cartsync/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// Catalog sheet columns, in order. Header names are matched case-insensitively
// so the sheet may reorder them; stock and description are optional.
var requiredColumns = []string{"id", "name_en", "name_ar", "price", "sale_price", "image", "category"}

func main() {
	assumeYes := flag.Bool("yes", false, "import without asking for confirmation")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run cmd/seed/main.go [-yes] <catalog.xlsx>")
	}
	filePath := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.Initialize(logger.Config{Level: "info", Format: "console", EnableColor: true})

	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to connect to database", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	productService := service.NewProductService(repository.NewProductRepository(db.GetDB()))

	fmt.Printf("Reading XLSX file: %s\n", filePath)
	products, skipped, err := readProductsFromXLSX(filePath)
	if err != nil {
		logger.Fatal("Failed to read XLSX", err)
	}

	fmt.Printf("Products to import: %d (skipped rows: %d)\n", len(products), skipped)

	if !*assumeYes {
		fmt.Print("Do you want to proceed with the import? (yes/no): ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "yes" && confirm != "y" {
			fmt.Println("Import cancelled.")
			return
		}
	}

	imported := 0
	for i := range products {
		if err := productService.UpsertProduct(&products[i]); err != nil {
			logger.Warn("Skipping product", map[string]interface{}{
				"product_id": products[i].ID,
				"error":      err.Error(),
			})
			continue
		}
		imported++
	}

	fmt.Println("Import completed successfully!")
	fmt.Printf("Total products imported: %d\n", imported)
	if imported < len(products) {
		os.Exit(1)
	}
}

func readProductsFromXLSX(filePath string) ([]model.Product, int, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, 0, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("no data found in XLSX file")
	}

	return parseCatalogRows(rows)
}

// parseCatalogRows turns sheet rows (header first) into products. Rows with a
// missing id or name, or an unparsable price, are counted as skipped.
func parseCatalogRows(rows [][]string) ([]model.Product, int, error) {
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", col)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var products []model.Product
	seen := make(map[string]bool)
	skipped := 0

	for _, row := range rows[1:] {
		id := cell(row, "id")
		name := cell(row, "name_en")
		if id == "" || name == "" || seen[id] {
			skipped++
			continue
		}

		price, err := parsePrice(cell(row, "price"))
		if err != nil {
			skipped++
			continue
		}
		salePrice, err := parsePrice(cell(row, "sale_price"))
		if err != nil {
			salePrice = 0
		}

		stock := 0
		if s := cell(row, "stock"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n >= 0 {
				stock = n
			}
		}

		category := model.ProductCategory(strings.ToLower(cell(row, "category")))
		if category == "" {
			category = model.CategoryBouquet
		}

		seen[id] = true
		products = append(products, model.Product{
			ID:            id,
			NameEn:        name,
			NameAr:        cell(row, "name_ar"),
			Description:   cell(row, "description"),
			Price:         price,
			SalePrice:     salePrice,
			Category:      category,
			StockQuantity: stock,
			Image:         cell(row, "image"),
		})
	}

	return products, skipped, nil
}

// parsePrice accepts plain and thousands-separated numbers; empty is zero.
func parsePrice(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative price %q", s)
	}
	return v, nil
}
