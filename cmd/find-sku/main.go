package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/config"
	"github.com/salvashop/shopapi/internal/repository/postgres"
	"github.com/salvashop/shopapi/internal/service"
	"github.com/salvashop/shopapi/pkg/errors"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/find-sku/main.go <sku>")
		fmt.Println("Example: go run cmd/find-sku/main.go \"HD-M-RED\"")
		os.Exit(1)
	}

	targetSKU := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	skus := service.NewSKUService(postgres.NewProductRepository(db, logger), logger)

	fmt.Printf("🔍 Searching for SKU: %s\n\n", targetSKU)

	matches, err := skus.Lookup(context.Background(), targetSKU)
	if errors.IsNotFound(err) {
		fmt.Printf("❌ SKU '%s' not found in the catalog.\n", targetSKU)
		fmt.Printf("\nMake sure:\n")
		fmt.Printf("  1. The SKU is correct (case-sensitive)\n")
		fmt.Printf("  2. The variant has been imported\n")
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to look up SKU: %v\n", err)
		os.Exit(1)
	}

	for _, m := range matches {
		fmt.Printf("✅ Found SKU!\n\n")
		fmt.Printf("SKU: %s\n", m.SKU)
		fmt.Printf("Product: %s (%s)\n", m.ProductName, m.ProductID)
		if m.VariantInfo != "" {
			fmt.Printf("Variant: %s\n", m.VariantInfo)
		}
		fmt.Printf("Price: %.2f\n", m.Price)
		fmt.Printf("Stock: %d\n", m.Stock)
		if !m.Available || !m.Active {
			fmt.Printf("⚠️  Not purchasable (variant available: %t, product active: %t)\n", m.Available, m.Active)
		}
		fmt.Println()
	}
}
