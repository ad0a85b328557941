package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/config"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
	pg "teamchat-upgrade/internal/infra/db/postgres"
)

// Fixed IDs keep the seed idempotent.
var seedUsers = []struct {
	ID, Email, Name string
}{
	{"00000000-0000-4000-8000-000000000001", "amina@example.com", "Amina Wanjiku"},
	{"00000000-0000-4000-8000-000000000002", "brian@example.com", "Brian Otieno"},
	{"00000000-0000-4000-8000-000000000003", "chloe@example.com", "Chloe Mwangi"},
}

var seedWorkspaces = []struct {
	ID, Name, Slug, Owner, Invite string
	Members                       []string
}{
	{"10000000-0000-4000-8000-000000000001", "Acme Design", "acme-design", seedUsers[0].ID, "ACME2024", []string{seedUsers[1].ID}},
	{"10000000-0000-4000-8000-000000000002", "Nairobi Devs", "nairobi-devs", seedUsers[1].ID, "NBODEVS", []string{seedUsers[2].ID}},
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, &log); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	users := pg.NewPostgresUserRepo(pool)
	workspaces := pg.NewWorkspaceRepo(pool)
	tm := pg.NewTxManager(pool)

	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, su := range seedUsers {
			u, err := model.NewUser(su.ID, su.Email, su.Name)
			if err != nil {
				return err
			}
			u.CreditsRemaining = cfg.Credits.FreeDefault
			if err := users.Save(ctx, tx, u); err != nil {
				return fmt.Errorf("user %s: %w", su.Email, err)
			}
		}
		for _, sw := range seedWorkspaces {
			ws, err := model.NewWorkspace(sw.ID, sw.Name, sw.Slug, sw.Owner, sw.Invite)
			if err != nil {
				return err
			}
			ws.MemberIDs = append(ws.MemberIDs, sw.Members...)
			ws.Channels = []string{"general", "random"}
			if err := workspaces.Save(ctx, tx, ws); err != nil {
				return fmt.Errorf("workspace %s: %w", sw.Slug, err)
			}
			for _, uid := range ws.MemberIDs {
				if err := users.AddWorkspace(ctx, tx, uid, ws.ID); err != nil {
					return fmt.Errorf("workspace %s member %s: %w", sw.Slug, uid, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed")
	}

	for _, sw := range seedWorkspaces {
		fmt.Printf("seeded workspace %-14s invite=%s members=%d\n", sw.Slug, sw.Invite, len(sw.Members)+1)
	}
	fmt.Printf("seeded %d users\n", len(seedUsers))
}
