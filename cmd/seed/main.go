package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/contactly/accounts/config"
	"github.com/contactly/accounts/internal/domain/entity"
	pginfra "github.com/contactly/accounts/internal/infrastructure/postgres"
	"github.com/contactly/accounts/pkg/gravatar"
	"github.com/contactly/accounts/pkg/helpers"
)

// Seeds a single confirmed account for local development.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	email := flag.String("email", "dev@example.com", "email for the seeded account")
	password := flag.String("password", "devpassword1", "password for the seeded account")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := pginfra.NewUserRepository(pool)

	if _, err := repo.GetByEmail(ctx, *email); err == nil {
		log.Printf("user %s already exists, nothing to do", *email)
		return
	}

	hash, err := helpers.HashPassword(*password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	grav := gravatar.NewClient()
	grav.BaseURL = cfg.GravatarBaseURL
	u := &entity.User{Email: *email, Password: hash}
	if url, err := grav.AvatarURL(ctx, *email); err == nil {
		u.Avatar = &url
	} else {
		log.Printf("gravatar lookup failed, seeding without avatar: %v", err)
	}

	if err := repo.Create(ctx, u); err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	if err := repo.ConfirmEmail(ctx, u.Email); err != nil {
		log.Fatalf("failed to confirm user: %v", err)
	}
	log.Printf("seeded user %s (id=%s)", u.Email, u.ID)
}
