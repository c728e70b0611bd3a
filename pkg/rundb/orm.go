package rundb

import "github.com/cyclopcam/dbh"

// Run is one invocation of the trainer
type Run struct {
	ID         int64       `gorm:"primaryKey" json:"id"`
	Config     string      `json:"config"` // JSON of config.Config
	Device     string      `json:"device"`
	StartedAt  dbh.IntTime `json:"startedAt"`
	FinishedAt dbh.IntTime `gorm:"default:null" json:"finishedAt"`
	Error      string      `gorm:"default:null" json:"error"`
}

// LossReport holds the running average losses at a log interval
type LossReport struct {
	ID           int64       `gorm:"primaryKey" json:"id"`
	RunID        int64       `json:"runId"`
	Epoch        int         `json:"epoch"`
	Batch        int         `json:"batch"`
	AvgFgLoss    float64     `json:"avgFgLoss"`
	AvgBgLoss    float64     `json:"avgBgLoss"`
	AvgTotalLoss float64     `json:"avgTotalLoss"`
	CreatedAt    dbh.IntTime `json:"createdAt"`
}

// Checkpoint is a saved model. Final is true for the model saved at the end of training.
type Checkpoint struct {
	ID        int64       `gorm:"primaryKey" json:"id"`
	RunID     int64       `json:"runId"`
	Epoch     int         `json:"epoch"`
	Batch     int         `json:"batch"`
	Name      string      `json:"name"`
	Final     bool        `json:"final"`
	CreatedAt dbh.IntTime `json:"createdAt"`
}
