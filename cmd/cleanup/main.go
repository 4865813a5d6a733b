package main

import (
	"flag"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/database"
	"github.com/phdwriter/essay_go_server/internal/repository"
)

// One-shot maintenance binary: purges settled payment events older than
// the retention window and accounts that never verified their email.
// Run from a crontab or a scheduled job.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	retentionDays := flag.Int("retention-days", 90, "keep processed events this many days")
	unverifiedDays := flag.Int("unverified-days", 30, "keep unverified accounts this many days")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	eventRepo := repository.NewPaymentEventRepository(db)
	cutoff := time.Now().AddDate(0, 0, -*retentionDays)

	n, err := eventRepo.DeleteProcessedBefore(cutoff)
	if err != nil {
		log.Fatal().Err(err).Msg("payment event cleanup failed")
	}
	log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("payment event cleanup done")

	userRepo := repository.NewUserRepository(db)
	staleCutoff := time.Now().AddDate(0, 0, -*unverifiedDays)

	n, err = userRepo.DeleteStaleUnverified(staleCutoff)
	if err != nil {
		log.Fatal().Err(err).Msg("unverified account cleanup failed")
	}
	log.Info().Int64("deleted", n).Time("cutoff", staleCutoff).Msg("unverified account cleanup done")
}
