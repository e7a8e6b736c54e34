// Package database provides the SQLite store behind the delivery journal.
//
// The journal records what each sync run did. It is informational only: the
// JSON ledger stays the single source of truth for what was already synced,
// and a missing or broken database never stops a run.
//
//	db, err := database.NewDatabase("./data/journal.db", logger)
//	repo := audit.NewRepository(db.DB)
//
// Sub-packages expose one Repository per domain, constructed from the shared
// *gorm.DB.
package database
