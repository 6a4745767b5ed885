package database

import (
	"time"
)

// PixelState holds the encoded state blob of one pixel.
type PixelState struct {
	MonitorName string    `gorm:"primaryKey;column:monitor_name"`
	PixelID     string    `gorm:"primaryKey;column:pixel_id"`
	State       []byte    `gorm:"column:state;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for PixelState
func (PixelState) TableName() string {
	return "pixel_states"
}

// MonitoringResult counts the pixels of a feature newly disturbed on a date.
type MonitoringResult struct {
	MonitorName string    `gorm:"primaryKey;column:monitor_name"`
	FeatureID   string    `gorm:"primaryKey;column:feature_id"`
	Date        time.Time `gorm:"primaryKey;column:date;type:date"`
	Value       int       `gorm:"column:value;not null"`
}

// TableName specifies the table name for MonitoringResult
func (MonitoringResult) TableName() string {
	return "monitoring_results"
}

// MonitoringRun is one entry of the run log.
type MonitoringRun struct {
	RunID       string    `gorm:"primaryKey;column:run_id"`
	MonitorName string    `gorm:"column:monitor_name;index:idx_monitoring_runs_monitor"`
	FeatureID   string    `gorm:"column:feature_id"`
	WindowFrom  time.Time `gorm:"column:window_from"`
	WindowTo    time.Time `gorm:"column:window_to"`
	StartedAt   time.Time `gorm:"column:started_at;index:idx_monitoring_runs_monitor"`
	FinishedAt  time.Time `gorm:"column:finished_at"`
	Pixels      int       `gorm:"column:pixels"`
	Fitted      int       `gorm:"column:fitted"`
	Disturbed   int       `gorm:"column:disturbed"`
	Failed      int       `gorm:"column:failed"`
}

// TableName specifies the table name for MonitoringRun
func (MonitoringRun) TableName() string {
	return "monitoring_runs"
}

// Models lists every table for AutoMigrate.
func Models() []interface{} {
	return []interface{}{&PixelState{}, &MonitoringResult{}, &MonitoringRun{}}
}
