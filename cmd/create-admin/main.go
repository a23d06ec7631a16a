package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/salvashop/shopapi/internal/config"
	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/repository/postgres"
	"github.com/salvashop/shopapi/pkg/auth"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run cmd/create-admin/main.go <email> <password> [first-name]")
		fmt.Println("Example: go run cmd/create-admin/main.go \"ops@salvashop.com\" \"s3cret-pass\" \"Ops\"")
		os.Exit(1)
	}

	email := strings.ToLower(strings.TrimSpace(os.Args[1]))
	password := os.Args[2]
	firstName := "Admin"
	if len(os.Args) > 3 {
		firstName = os.Args[3]
	}
	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "Password must be at least 8 characters")
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	repos := postgres.NewRepositories(db, logger)

	admin := &domain.User{
		Email:        email,
		FirstName:    firstName,
		PasswordHash: string(passwordHash),
		Role:         domain.UserRoleAdmin,
	}
	if err := repos.User.Create(context.Background(), admin); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create admin: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.MintAccessToken(cfg.Auth, time.Now().UTC(), admin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to mint access token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Admin created successfully!\n\n")
	fmt.Printf("User ID: %s\n", admin.ID.String())
	fmt.Printf("Email: %s\n", admin.Email)
	fmt.Printf("\nAccess token (expires in %d minutes):\n", cfg.Auth.ExpirationMinutes)
	fmt.Printf("Authorization: Bearer %s\n", token)
}
