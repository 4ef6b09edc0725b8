//go:build ignore

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fenilmodi00/ipogains-backend/config"
	"github.com/fenilmodi00/ipogains-backend/database"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

// Standalone deployment diagnostic. Run with: go run health_check.go
func main() {
	fmt.Printf("🏥 IPOGains Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	healthScore := 0
	totalTests := 4

	// Test 1: Database
	fmt.Print("🗄️  Database: ")
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		defer db.Close()
		var ipoCount int
		if err := db.QueryRow("SELECT COUNT(*) FROM ipos").Scan(&ipoCount); err != nil {
			fmt.Printf("⚠️  Connected, schema missing (%v)\n", err)
		} else {
			fmt.Printf("✅ OK (%d IPOs)\n", ipoCount)
			healthScore++
		}
	}

	// Test 2: PAN encryption key
	fmt.Print("🔐 PAN encryption: ")
	if codec, err := shared.NewPANCodec(cfg.PANKey); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		tok, _ := codec.Encrypt("ABCDE1234F")
		if plain, err := codec.Decrypt(tok); err != nil || plain != "ABCDE1234F" {
			fmt.Println("❌ FAILED (round-trip mismatch)")
		} else {
			fmt.Println("✅ OK")
			healthScore++
		}
	}

	// Test 3: JWT secret
	fmt.Print("🔑 JWT secret: ")
	if cfg.JWTSecret == "" {
		fmt.Println("❌ MISSING")
	} else {
		fmt.Println("✅ OK")
		healthScore++
	}

	// Test 4: SMTP configuration
	fmt.Print("📧 SMTP: ")
	if !cfg.EmailConfigured() {
		fmt.Println("⚠️  Not configured (emails will be logged only)")
	} else {
		fmt.Printf("✅ OK (%s:%d)\n", cfg.SMTPHost, cfg.SMTPPort)
		healthScore++
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Health: %d/%d checks passed\n", healthScore, totalTests)
}
