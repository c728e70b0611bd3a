package rundb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/bfvos/pkg/config"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// RunDB is an SQLite database that records the history of training runs
type RunDB struct {
	Log logs.Log
	DB  *gorm.DB
}

func Open(log logs.Log, dbFilename string) (*RunDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0777)
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbFilename), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &RunDB{
		Log: log,
		DB:  db,
	}, nil
}

func (r *RunDB) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartRun records the start of a training run, and returns the run ID
func (r *RunDB) StartRun(cfg *config.Config, device string) (int64, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return 0, err
	}
	run := Run{
		Config:    string(cfgJSON),
		Device:    device,
		StartedAt: dbh.MakeIntTime(time.Now()),
	}
	if err := r.DB.Create(&run).Error; err != nil {
		return 0, err
	}
	return run.ID, nil
}

// FinishRun marks a run as complete. If runErr is not nil, it is stored with the run.
func (r *RunDB) FinishRun(runID int64, runErr error) error {
	updates := map[string]any{
		"finished_at": dbh.MakeIntTime(time.Now()),
	}
	if runErr != nil {
		updates["error"] = runErr.Error()
	}
	return r.DB.Model(&Run{}).Where("id = ?", runID).Updates(updates).Error
}

func (r *RunDB) RecordLoss(runID int64, epoch, batch int, avgFg, avgBg, avgTotal float64) error {
	report := LossReport{
		RunID:        runID,
		Epoch:        epoch,
		Batch:        batch,
		AvgFgLoss:    avgFg,
		AvgBgLoss:    avgBg,
		AvgTotalLoss: avgTotal,
		CreatedAt:    dbh.MakeIntTime(time.Now()),
	}
	return r.DB.Create(&report).Error
}

func (r *RunDB) RecordCheckpoint(runID int64, epoch, batch int, name string, final bool) error {
	ckpt := Checkpoint{
		RunID:     runID,
		Epoch:     epoch,
		Batch:     batch,
		Name:      name,
		Final:     final,
		CreatedAt: dbh.MakeIntTime(time.Now()),
	}
	return r.DB.Create(&ckpt).Error
}

func (r *RunDB) GetRun(runID int64) (*Run, error) {
	run := Run{}
	if err := r.DB.First(&run, runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// Checkpoints returns the checkpoints of a run, oldest first
func (r *RunDB) Checkpoints(runID int64) ([]Checkpoint, error) {
	ckpts := []Checkpoint{}
	err := r.DB.Where("run_id = ?", runID).Order("id").Find(&ckpts).Error
	return ckpts, err
}

// LossReports returns the loss reports of a run, oldest first
func (r *RunDB) LossReports(runID int64) ([]LossReport, error) {
	reports := []LossReport{}
	err := r.DB.Where("run_id = ?", runID).Order("id").Find(&reports).Error
	return reports, err
}

// LatestCheckpoint returns the most recent checkpoint of any run, or nil if there are none
func (r *RunDB) LatestCheckpoint() (*Checkpoint, error) {
	ckpts := []Checkpoint{}
	if err := r.DB.Order("id DESC").Limit(1).Find(&ckpts).Error; err != nil {
		return nil, err
	}
	if len(ckpts) == 0 {
		return nil, nil
	}
	return &ckpts[0], nil
}

// Recorder writes the progress of one run
type Recorder struct {
	DB    *RunDB
	RunID int64
}

func (r *RunDB) Recorder(runID int64) *Recorder {
	return &Recorder{DB: r, RunID: runID}
}

func (r *Recorder) RecordLoss(epoch, batch int, avgFg, avgBg, avgTotal float64) error {
	return r.DB.RecordLoss(r.RunID, epoch, batch, avgFg, avgBg, avgTotal)
}

func (r *Recorder) RecordCheckpoint(epoch, batch int, name string, final bool) error {
	return r.DB.RecordCheckpoint(r.RunID, epoch, batch, name, final)
}
