package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/railconnect/route-finder/internal/utils"
	"github.com/railconnect/route-finder/pkg/jwt"
)

func main() {
	var (
		mintToken bool
		ttl       time.Duration
	)
	flag.BoolVar(&mintToken, "admin-token", false, "Sign an admin token with JWT_SECRET instead of generating a secret")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Lifetime of the admin token")
	flag.Parse()

	if mintToken {
		_ = godotenv.Load()
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			log.Fatal("JWT_SECRET is not set")
		}
		issuer := os.Getenv("JWT_ISSUER")
		if issuer == "" {
			issuer = "railconnect"
		}

		token, err := jwt.NewService(secret, issuer, ttl).GenerateToken(uuid.New(), []string{jwt.RoleAdmin})
		if err != nil {
			log.Fatalf("Failed to sign admin token: %v", err)
		}
		fmt.Println(token)
		return
	}

	secret, err := utils.GenerateSecret(32) // 256-bit
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()
	fmt.Println("Keep this secret safe and never commit it to version control.")
}
