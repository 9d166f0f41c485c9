package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gatherly/server/internal/config"
	"github.com/gatherly/server/internal/domain/events"
	"github.com/gatherly/server/internal/domain/users"
	"github.com/gatherly/server/internal/storage/postgres"
)

// seedCmd fills a development database with demo users, a connection
// between them, and a handful of upcoming and past events.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo data for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		if cfg.Environment == "production" {
			return fmt.Errorf("refusing to seed a production database")
		}
		logger := config.NewLogger(cfg.Logging)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pool, err := postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		usersRepo := postgres.NewUsersRepository(pool)
		usersService := users.NewService(usersRepo, logger)
		eventsService := events.NewService(postgres.NewEventsRepository(pool), logger)

		alice, err := seedUser(ctx, usersService, "alice@gatherly.dev", "Alice Demo")
		if err != nil {
			return err
		}
		bob, err := seedUser(ctx, usersService, "bob@gatherly.dev", "Bob Demo")
		if err != nil {
			return err
		}

		if err := usersRepo.AddConnection(ctx, alice.ID, bob.ID); err != nil && !errors.Is(err, users.ErrAlreadyConnected) {
			return fmt.Errorf("connect demo users: %w", err)
		}
		if err := usersRepo.AddConnection(ctx, bob.ID, alice.ID); err != nil && !errors.Is(err, users.ErrAlreadyConnected) {
			return fmt.Errorf("connect demo users: %w", err)
		}

		categories, err := eventsService.ListCategories(ctx, alice.ID)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		if len(categories) == 0 {
			return fmt.Errorf("no categories found; run migrations first")
		}
		category := categories[0].ID

		now := time.Now().UTC()
		demo := []struct {
			owner uuid.UUID
			input events.CreateEventInput
		}{
			{alice.ID, demoEvent("Alice's birthday dinner", category, now.AddDate(0, 0, 3))},
			{alice.ID, demoEvent("Museum visit", category, now.AddDate(0, 0, -14))},
			{bob.ID, demoEvent("Bob's board game night", category, now.AddDate(0, 0, 5))},
			{bob.ID, demoEvent("Weekly run", category, now.AddDate(0, 0, 1))},
		}
		for _, d := range demo {
			if _, err := eventsService.Create(ctx, d.owner, d.input); err != nil {
				return fmt.Errorf("seed event %q: %w", d.input.Title, err)
			}
		}

		logger.Info().
			Str("alice", alice.Email).
			Str("bob", bob.Email).
			Int("events", len(demo)).
			Msg("demo data seeded (password for both users: password123)")
		return nil
	},
}

func seedUser(ctx context.Context, svc *users.Service, email, name string) (*users.User, error) {
	user, err := svc.Register(ctx, users.RegisterInput{
		Email:    email,
		Password: "password123",
		Name:     name,
	})
	if errors.Is(err, users.ErrEmailTaken) {
		return svc.Authenticate(ctx, email, "password123")
	}
	if err != nil {
		return nil, fmt.Errorf("seed user %s: %w", email, err)
	}
	return user, nil
}

func demoEvent(title string, category uuid.UUID, start time.Time) events.CreateEventInput {
	end := start.Add(2 * time.Hour)
	return events.CreateEventInput{
		Title:    title,
		Date:     events.DateInput{Start: start, End: &end},
		Category: category,
	}
}
