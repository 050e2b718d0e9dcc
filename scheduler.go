package main

import (
	"database/sql"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// StartDraftPurgeScheduler starts a cron-based sweep that deletes
// expired drafts from the local store.
// The schedule is a standard 5-field cron expression (minute hour day-of-month month day-of-week).
// Examples: "0 3 * * *" (daily 3am), "0 3 * * 1" (Mondays 3am).
func StartDraftPurgeScheduler(cfg Config, db *sql.DB) {
	schedule := strings.TrimSpace(cfg.DraftPurgeSchedule)
	if schedule == "" {
		log.Println("Draft purge disabled (draft_purge_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid draft_purge_schedule '%s': %v — draft purge disabled", schedule, err)
		return
	}

	log.Printf("Draft purge scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next draft purge at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			n, purgeErr := PurgeExpiredDrafts(db, time.Now())
			if purgeErr != nil {
				log.Printf("Draft purge error: %v", purgeErr)
				continue
			}
			log.Printf("Draft purge complete: %d removed", n)
		}
	}()
}
