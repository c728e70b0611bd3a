package rundb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id INTEGER PRIMARY KEY,
			config TEXT NOT NULL,
			device TEXT NOT NULL,
			started_at INT NOT NULL,
			finished_at INT,
			error TEXT
		);

		CREATE TABLE loss_report(
			id INTEGER PRIMARY KEY,
			run_id INT NOT NULL,
			epoch INT NOT NULL,
			batch INT NOT NULL,
			avg_fg_loss REAL NOT NULL,
			avg_bg_loss REAL NOT NULL,
			avg_total_loss REAL NOT NULL,
			created_at INT NOT NULL
		);
		CREATE INDEX idx_loss_report_run_id ON loss_report (run_id);

		CREATE TABLE checkpoint(
			id INTEGER PRIMARY KEY,
			run_id INT NOT NULL,
			epoch INT NOT NULL,
			batch INT NOT NULL,
			name TEXT NOT NULL,
			final BOOLEAN NOT NULL,
			created_at INT NOT NULL
		);
		CREATE INDEX idx_checkpoint_run_id ON checkpoint (run_id);
	`))

	return migs
}
