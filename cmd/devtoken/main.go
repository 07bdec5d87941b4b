// Command devtoken mints HS256 bearer tokens for local development against
// a gateway configured with auth.hmac_secret.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wellbridge/careguard/internal/config"
)

func main() {
	secret := flag.String("secret", os.Getenv("CAREGUARD_HMAC_SECRET"), "HMAC signing secret")
	subject := flag.String("sub", "", "user ID (required)")
	tenant := flag.String("tenant", "", "tenant ID (required)")
	role := flag.String("role", "patient", "role claim: patient or auditor")
	issuer := flag.String("iss", "", "issuer claim")
	audience := flag.String("aud", "", "audience claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" || *subject == "" || *tenant == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -secret, -sub, and -tenant are required")
		os.Exit(1)
	}

	defaults := config.DefaultConfig().Auth
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":                *subject,
		"iat":                now.Unix(),
		"exp":                now.Add(*ttl).Unix(),
		defaults.TenantClaim: *tenant,
		defaults.RoleClaim:   *role,
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}
	if *audience != "" {
		claims["aud"] = *audience
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(signed)
}
