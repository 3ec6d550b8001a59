// Command admintoken prints an admin bearer token signed with the configured
// secret. The subject defaults to "admin" and can be set with REGMIRROR_TOKEN_SUBJECT.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/regmirror/internal/server/auth"
	"github.com/dmitrijs2005/regmirror/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()

	subject := os.Getenv(config.EnvPrefix + "TOKEN_SUBJECT")
	if subject == "" {
		subject = "admin"
	}

	token, err := auth.GenerateToken(subject, auth.RoleAdmin, []byte(cfg.AdminSecret), cfg.AdminTokenValidity)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
