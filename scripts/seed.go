//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hugh/projectcamp/internal/auth"
	"github.com/hugh/projectcamp/internal/database"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/projects"
	"github.com/hugh/projectcamp/pkg/config"
	"github.com/hugh/projectcamp/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)
	ctx := context.Background()

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	jwtService := auth.NewJWTService(
		cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry(),
		cfg.JWT.RefreshSecret, cfg.JWT.RefreshExpiry(),
	)
	// No notifier: seeded accounts skip the verification mail.
	authService := auth.NewService(db, jwtService, nil, auth.Links{ServerURL: cfg.App.ServerURL}, logger)
	projectService := projects.NewService(db, nil, logger)

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	username := os.Getenv("ADMIN_USERNAME")

	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "admin123!"
	}
	if username == "" {
		username = "admin"
	}

	admin, err := authService.Register(ctx, auth.RegisterInput{
		Email:    email,
		Username: username,
		Password: password,
		FullName: "Admin",
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	if err := db.Model(admin).Update("is_email_verified", true).Error; err != nil {
		log.Fatalf("failed to verify admin user: %v", err)
	}

	member, err := authService.Register(ctx, auth.RegisterInput{
		Email:    "member@example.com",
		Username: "member",
		Password: password,
		FullName: "Demo Member",
	})
	if err != nil {
		log.Fatalf("failed to create member user: %v", err)
	}

	project, err := projectService.Create(ctx, projects.CreateInput{
		Name:        "Demo Project",
		Description: "Seeded project",
		CreatorID:   admin.ID,
	})
	if err != nil {
		log.Fatalf("failed to create project: %v", err)
	}

	if _, _, err := projectService.AddOrUpdateMember(ctx, project.ID, member.Email, models.RoleMember); err != nil {
		log.Fatalf("failed to add member: %v", err)
	}

	fmt.Printf("Seed data created successfully!\n")
	fmt.Printf("Admin: %s / %s\n", admin.Email, password)
	fmt.Printf("Member: %s / %s\n", member.Email, password)
	fmt.Printf("Project: %s (%s)\n", project.Name, project.ID)
}
