package server

import (
	"context"
	"fmt"
	"log"

	"flatmate/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DemoPassword is the shared password for seeded demo profiles.
const DemoPassword = "password123"

// SeedDemoProfiles creates a landlord and a tenant profile for local demos
// and integration tests. Existing emails are left untouched.
func SeedDemoProfiles(ctx context.Context, repo ChatRepository) ([]*models.Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	seeds := []*models.Profile{
		{
			Email:        "landlord@example.com",
			PasswordHash: string(hash),
			Name:         gofakeit.Name(),
			Title:        fmt.Sprintf("%s in %s", gofakeit.RandomString([]string{"Bright room", "Shared flat", "Studio", "Attic room"}), gofakeit.City()),
			Image:        gofakeit.ImageURL(320, 240),
			Role:         models.RoleLandlord,
		},
		{
			Email:        "tenant@example.com",
			PasswordHash: string(hash),
			Name:         gofakeit.Name(),
			Title:        gofakeit.JobTitle(),
			Image:        gofakeit.ImageURL(320, 240),
			Role:         models.RoleTenant,
		},
	}

	out := make([]*models.Profile, 0, len(seeds))
	for _, p := range seeds {
		if existing, err := repo.GetProfileByEmail(ctx, p.Email); err == nil {
			out = append(out, existing)
			continue
		}
		if err := repo.CreateProfile(ctx, p); err != nil {
			return nil, fmt.Errorf("seed profile %s: %w", p.Email, err)
		}
		log.Printf("seeded profile %s (%s)", p.Email, p.Role)
		out = append(out, p)
	}
	return out, nil
}
