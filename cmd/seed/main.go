package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/oksasatya/tourauth/config"
	"github.com/oksasatya/tourauth/internal/domain/entity"
	"github.com/oksasatya/tourauth/internal/domain/repository"
	pginfra "github.com/oksasatya/tourauth/internal/infrastructure/postgres"
	"github.com/oksasatya/tourauth/pkg/apperror"
	"github.com/oksasatya/tourauth/pkg/helpers"
)

// seed creates an active admin account, or promotes an existing one.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	email := flag.String("email", "admin@natours.io", "admin email")
	password := flag.String("password", "password123", "admin password")
	name := flag.String("name", "Admin", "admin name")
	flag.Parse()

	ctx := context.Background()
	pool, err := pginfra.NewPool(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := pginfra.NewUserRepository(pool)

	hash, err := helpers.NewHasher(cfg.BcryptCost, 1).Hash(ctx, *password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	existing, err := repo.FindByEmail(ctx, *email, repository.WithSecrets())
	switch {
	case err == nil:
		existing.Role = entity.RoleAdmin
		existing.PasswordHash = hash
		existing.State = entity.Active{}
		existing.LoginAttempts = 0
		if err := repo.Save(ctx, existing, repository.SaveOptions{}); err != nil {
			log.Fatalf("failed to update admin: %v", err)
		}
		fmt.Printf("updated admin: id=%s email=%s\n", existing.ID, existing.Email)
	case apperror.Is(err, apperror.KindNotFound):
		u := &entity.User{
			Name:         *name,
			Email:        *email,
			Role:         entity.RoleAdmin,
			PasswordHash: hash,
			State:        entity.Active{},
		}
		if err := repo.Create(ctx, u); err != nil {
			log.Fatalf("failed to seed admin: %v", err)
		}
		fmt.Printf("seeded admin: id=%s email=%s password=%s\n", u.ID, u.Email, *password)
	default:
		log.Fatalf("lookup failed: %v", err)
	}
}
