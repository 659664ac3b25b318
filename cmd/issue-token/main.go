// Command issue-token prints a signed bearer token for local testing against the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/example/mechanic-dispatch/internal/auth"
	"github.com/example/mechanic-dispatch/internal/models"
)

func main() {
	userID := flag.String("user", uuid.NewString(), "user id")
	email := flag.String("email", "", "email claim")
	roleFlag := flag.String("role", "CUSTOMER", "role (CUSTOMER|MECHANIC|DISPATCHER)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set to the server's signing secret")
		os.Exit(2)
	}
	role, ok := models.ParseRole(*roleFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *roleFlag)
		os.Exit(2)
	}

	token, err := auth.NewTokens(secret, *ttl).Issue(*userID, *email, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User ID: %s\nRole:    %s\n\n", *userID, role)
	fmt.Printf("Authorization: Bearer %s\n", token)
}
