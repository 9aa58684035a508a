package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tournament-escrow/config"
	"tournament-escrow/models"
	"tournament-escrow/services"
	"tournament-escrow/utils"
)

func main() {
	root := &cobra.Command{
		Use:           "tournament-escrow",
		Short:         "Tournament lifecycle and prize escrow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			closer := utils.SetupLogging(cfg.LogFile)
			defer closer.Close()

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := migrate(db, cfg.BadgeCode); err != nil {
				return err
			}
			log.Println("✅ Database migrated")
			return nil
		},
	}
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func migrate(db *gorm.DB, badgeCode string) error {
	if err := db.AutoMigrate(
		&models.EventRecord{},
		&models.Tournament{},
		&models.TournamentEntry{},
		&models.BadgeType{},
		&models.UserBadge{},
		&models.WalletMirror{},
	); err != nil {
		return err
	}
	return services.EnsureBadgeType(db, badgeCode)
}
