// Seeds the first HR account so a fresh deployment can log in and provision
// the rest of the staff through the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cmcs-platform/claims-api/pkg/config"
	"github.com/cmcs-platform/claims-api/pkg/database"
)

func main() {
	email := flag.String("email", "hr@university.edu", "email for the HR account")
	name := flag.String("name", "HR Administrator", "full name for the HR account")
	password := flag.String("password", "", "initial password (required)")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "usage: seed -email <email> -name <name> -password <password>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'HR', TRUE, $5, $5)
		ON CONFLICT (email) DO NOTHING`,
		uuid.NewString(), *email, string(hash), *name, now)
	if err != nil {
		log.Fatalf("failed to insert HR account: %v", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		fmt.Printf("account %s already exists, nothing to do\n", *email)
		return
	}
	fmt.Printf("seeded HR account %s\n", *email)
}
