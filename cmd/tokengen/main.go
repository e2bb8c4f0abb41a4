package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/actiongate/internal/adapters/identity/bearer"
)

func main() {
	roles := flag.String("roles", "", "comma-separated roles")
	services := flag.String("services", "", "comma-separated services")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	issuer := flag.String("issuer", "", "issuer claim; must match auth.issuer when set")
	flag.Parse()

	_ = godotenv.Load()

	if flag.NArg() != 1 {
		fmt.Println("Usage: go run ./cmd/tokengen [flags] <user-id>")
		fmt.Println("Signs a bearer token with GATE_AUTH__JWT_SECRET for use in the Authorization header")
		os.Exit(1)
	}
	secret := os.Getenv("GATE_AUTH__JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "GATE_AUTH__JWT_SECRET is not set")
		os.Exit(1)
	}

	v, err := bearer.NewVerifier(secret, *issuer)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	token, err := v.Issue(bearer.Identity{
		ID:          flag.Arg(0),
		RoleList:    splitList(*roles),
		ServiceList: splitList(*services),
	}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", token)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
