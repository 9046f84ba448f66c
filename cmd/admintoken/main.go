package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/premiumeclipse/essencefurro/internal/platform/adminauth"
)

func main() {
	_ = godotenv.Load()

	var (
		subject = flag.String("sub", "", "Token subject, e.g. the operator's name (required)")
		ttl     = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
		secret  = flag.String("secret", os.Getenv("ADMIN_JWT_SECRET"), "Signing secret (or set ADMIN_JWT_SECRET env)")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal("Signing secret required (--secret or ADMIN_JWT_SECRET env)")
	}

	token, err := adminauth.New(*secret, clockwork.NewRealClock()).Issue(*subject, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
