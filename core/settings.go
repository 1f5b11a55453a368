package core

// =============================================================================
// SETTINGS - The singleton knob row
// =============================================================================

// Settings holds every recognized knob plus the engine's persisted state.
// A single row, lazily created with these defaults on first read. The
// three *Date fields are the only idempotence tokens in the system: the
// scheduler and planner key off them, never off in-memory flags, so a
// crash-restart cannot double-apply penalties or rolls.
type Settings struct {
	// Planning
	MaxTasksPerDay int
	CriticalDays   int

	// Reward coefficients
	PointsPerTaskBase    int
	PointsPerHabitBase   int
	RoutinePointsFixed   int
	EnergyMultBase       float64
	EnergyMultStep       float64
	StreakLogFactor      float64
	MaxStreakBonusDays   int
	MinutesPerEnergyUnit int
	MinWorkTimeSeconds   int
	TimeEfficiencyWeight float64
	CompletionBonusFull  float64
	CompletionBonusGood  float64

	// Penalties
	IdlePenalty               int
	IncompleteDayPenalty      int
	IncompleteDayThreshold    float64
	IncompleteThresholdSevere float64
	IncompletePenaltySevere   int
	MissedHabitPenaltyBase    int
	ProgressivePenaltyFactor  float64
	ProgressivePenaltyMax     float64
	PenaltyStreakResetDays    int

	// Day boundary
	DayStartEnabled bool
	DayStartTime    string // "HH:MM"

	// Schedule
	RollAvailableTime    string // "HH:MM"
	AutoPenaltiesEnabled bool
	PenaltyTime          string // "HH:MM"
	AutoRollEnabled      bool
	AutoRollTime         string // "HH:MM"
	AutoBackupEnabled    bool
	BackupTime           string // "HH:MM"
	BackupIntervalDays   int
	BackupKeepLocalCount int

	// State (engine-owned, not operator knobs)
	LastRollDate    Day    // last effective date the agenda was rolled
	LastPenaltyDate Day    // most recent finalized date
	LastBackupDate  Day    // effective date of the last successful backup
	PendingRoll     bool   // an automatic roll has been triggered and not yet landed
	ActiveItemID    *int64 // the single active work item, if any
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() *Settings {
	return &Settings{
		MaxTasksPerDay: 10,
		CriticalDays:   2,

		PointsPerTaskBase:    10,
		PointsPerHabitBase:   10,
		RoutinePointsFixed:   6,
		EnergyMultBase:       0.6,
		EnergyMultStep:       0.2,
		StreakLogFactor:      0.15,
		MaxStreakBonusDays:   100,
		MinutesPerEnergyUnit: 20,
		MinWorkTimeSeconds:   120,
		TimeEfficiencyWeight: 0.5,
		CompletionBonusFull:  0.10,
		CompletionBonusGood:  0.05,

		IdlePenalty:               30,
		IncompleteDayPenalty:      10,
		IncompleteDayThreshold:    0.6,
		IncompleteThresholdSevere: 0.4,
		IncompletePenaltySevere:   15,
		MissedHabitPenaltyBase:    15,
		ProgressivePenaltyFactor:  0.1,
		ProgressivePenaltyMax:     1.5,
		PenaltyStreakResetDays:    2,

		DayStartEnabled: false,
		DayStartTime:    "06:00",

		RollAvailableTime:    "00:00",
		AutoPenaltiesEnabled: true,
		PenaltyTime:          "00:01",
		AutoRollEnabled:      false,
		AutoRollTime:         "06:00",
		AutoBackupEnabled:    true,
		BackupTime:           "03:00",
		BackupIntervalDays:   1,
		BackupKeepLocalCount: 10,
	}
}

// Validate rejects knob combinations the engine cannot run with.
func (s *Settings) Validate() error {
	for _, tt := range []struct {
		field, value string
	}{
		{"day_start_time", s.DayStartTime},
		{"roll_available_time", s.RollAvailableTime},
		{"penalty_time", s.PenaltyTime},
		{"auto_roll_time", s.AutoRollTime},
		{"backup_time", s.BackupTime},
	} {
		if _, err := ParseClock(tt.value); err != nil {
			return &InvalidArgumentError{Field: tt.field, Value: tt.value, Reason: "want HH:MM"}
		}
	}
	if s.MaxTasksPerDay < 1 {
		return &InvalidArgumentError{Field: "max_tasks_per_day", Value: s.MaxTasksPerDay, Reason: "must be >= 1"}
	}
	if s.CriticalDays < 0 {
		return &InvalidArgumentError{Field: "critical_days", Value: s.CriticalDays, Reason: "must be >= 0"}
	}
	if s.ProgressivePenaltyMax < 1 {
		return &InvalidArgumentError{Field: "progressive_penalty_max", Value: s.ProgressivePenaltyMax, Reason: "must be >= 1"}
	}
	if s.PenaltyStreakResetDays < 1 {
		return &InvalidArgumentError{Field: "penalty_streak_reset_days", Value: s.PenaltyStreakResetDays, Reason: "must be >= 1"}
	}
	if s.BackupIntervalDays < 1 {
		return &InvalidArgumentError{Field: "backup_interval_days", Value: s.BackupIntervalDays, Reason: "must be >= 1"}
	}
	if s.BackupKeepLocalCount < 1 {
		return &InvalidArgumentError{Field: "backup_keep_local_count", Value: s.BackupKeepLocalCount, Reason: "must be >= 1"}
	}
	return nil
}
