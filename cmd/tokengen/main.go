package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"push-device-service/internal/auth"
	"push-device-service/internal/logging"
)

func main() {
	secret := flag.String("secret", os.Getenv("MASTER_SECRET"), "Secret the service verifies session tokens with")
	issuer := flag.String("issuer", "push-device-service", "Issuer of the token")
	username := flag.String("username", "admin", "Username the session belongs to")
	tenant := flag.String("tenant", "carbon.super", "Tenant domain of the user")
	expiry := flag.Duration("expiry", time.Hour, "Token expiry duration (e.g., 30m, 1h, 24h)")
	flag.Parse()

	logger, restore, err := logging.Setup(logging.Options{Level: "warn", Dev: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer restore()

	token, err := auth.CreateToken(*username, *tenant, auth.TokenConfig{Secret: *secret, Expiry: *expiry, Issuer: *issuer})
	if err != nil {
		logger.Error("failed to generate token", zap.Error(err))
		restore()
		os.Exit(1)
	}
	fmt.Println(token)
}
