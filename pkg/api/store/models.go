package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User source constants.
const (
	SourceConfig = "config"
	SourceAdmin  = "admin"
)

// Test result and board log levels.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// ValidResultStatus reports whether status is a TestResult status.
func ValidResultStatus(status string) bool {
	switch status {
	case LevelInfo, LevelWarn, LevelError:
		return true
	}

	return false
}

// ValidLogLevel reports whether level is a BoardLog level.
func ValidLogLevel(level string) bool {
	return level == LevelDebug || ValidResultStatus(level)
}

// User represents an authenticated user in the system.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"not null" json:"role"`
	Source       string    `gorm:"not null" json:"source"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session represents an active user session.
type Session struct {
	ID           uint      `gorm:"primaryKey"`
	Token        string    `gorm:"uniqueIndex;not null"`
	UserID       uint      `gorm:"not null;index"`
	ExpiresAt    time.Time `gorm:"not null"`
	CreatedAt    time.Time
	LastActiveAt *time.Time
}

// APIKey represents a bearer token for programmatic API access, e.g. CI
// jobs posting test results.
type APIKey struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	KeyHash    string `gorm:"uniqueIndex;not null"`
	KeyPrefix  string `gorm:"not null"`
	UserID     uint   `gorm:"not null;index"`
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// --- Taxonomy ---

// Capability is a named feature a Board may possess.
type Capability struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Label tags test cases, scenarios and runs.
type Label struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255;uniqueIndex;not null" json:"name"`
}

// TestType classifies test cases.
type TestType struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

// --- Inventory ---

// Relay is a networked power/IO switching device serving boards.
type Relay struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	RelayName     string     `gorm:"size:255;not null;index" json:"relay_name"`
	ModelType     string     `gorm:"size:100;index" json:"model_type"`
	Status        string     `gorm:"size:50;index" json:"status"`
	IPAddress     string     `gorm:"size:64" json:"ip_address"`
	MACAddress    string     `gorm:"size:32" json:"mac_address"`
	PortCount     int        `gorm:"not null;default:0" json:"port_count"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TestPC is a host machine that drives test execution against boards.
type TestPC struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Hostname        string     `gorm:"size:255;not null;index" json:"hostname"`
	Status          string     `gorm:"size:50;index" json:"status"`
	OSVersion       string     `gorm:"size:255;index" json:"os_version"`
	IPAddress       string     `gorm:"size:64" json:"ip_address"`
	DomainName      string     `gorm:"size:255" json:"domain_name"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Board is a physical test unit under management.
type Board struct {
	ID                   string       `gorm:"primaryKey;size:36"`
	Name                 string       `gorm:"size:255;not null;index"`
	Project              string       `gorm:"size:255"`
	Platform             string       `gorm:"size:255;index"`
	Status               string       `gorm:"size:50;index"`
	TestFarm             string       `gorm:"size:255;index"`
	HardwareSerialNumber string       `gorm:"size:255"`
	BoardIP              string       `gorm:"size:64"`
	IsAlive              bool         `gorm:"not null"`
	IsLocked             bool         `gorm:"not null"`
	LastHeartbeatAt      *time.Time
	RelayID              *string      `gorm:"size:36;index"`
	Relay                *Relay       `gorm:"constraint:OnDelete:SET NULL"`
	TestPCID             *string      `gorm:"size:36;index"`
	TestPC               *TestPC      `gorm:"constraint:OnDelete:SET NULL"`
	Capabilities         []Capability `gorm:"many2many:board_capabilities"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PCStats is an append-only resource sample of a TestPC.
type PCStats struct {
	ID            uint      `gorm:"primaryKey"`
	TestPCID      string    `gorm:"size:36;not null;index:idx_pc_stats_pc_ts"`
	TestPC        *TestPC   `gorm:"constraint:OnDelete:CASCADE"`
	Status        string    `gorm:"size:50;index"`
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	Timestamp     time.Time `gorm:"not null;index;index:idx_pc_stats_pc_ts"`
}

// TableName keeps the plural table name stable.
func (PCStats) TableName() string { return "pc_stats" }

// BoardLog is an append-only log line attached to a Board.
type BoardLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BoardID   string    `gorm:"size:36;not null;index:idx_board_logs_board_created" json:"board_id"`
	Level     string    `gorm:"size:10;not null;default:INFO;index" json:"level"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"index:idx_board_logs_board_created" json:"created_at"`
}

// BeforeCreate assigns a UUID to new relays.
func (r *Relay) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	return nil
}

// BeforeCreate assigns a UUID to new test PCs.
func (p *TestPC) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	return nil
}

// BeforeCreate assigns a UUID to new boards.
func (b *Board) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	return nil
}

// --- Test cases ---

// TestCase is a single reusable test definition.
type TestCase struct {
	ID          uint      `gorm:"primaryKey"`
	Title       string    `gorm:"size:255;not null;index"`
	Description string    `gorm:"type:text"`
	TestTypeID  *uint     `gorm:"index"`
	TestType    *TestType `gorm:"constraint:OnDelete:SET NULL"`
	Tags        []Label   `gorm:"many2many:test_case_tags"`
	IsActive    bool      `gorm:"not null"`
	CreatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// --- Execution grouping ---

// TestScenario groups test cases.
type TestScenario struct {
	ID          uint       `gorm:"primaryKey"`
	Name        string     `gorm:"size:255;not null;index"`
	Description string     `gorm:"type:text"`
	TestCases   []TestCase `gorm:"many2many:test_scenario_test_cases"`
	Labels      []Label    `gorm:"many2many:test_scenario_labels"`
	CreatedByID *uint
	UpdatedByID *uint
	CreatedAt   time.Time  `gorm:"index"`
	UpdatedAt   time.Time
}

// TestRun groups scenarios and owns result entries.
type TestRun struct {
	ID          uint           `gorm:"primaryKey"`
	Name        string         `gorm:"size:255;not null"`
	Description string         `gorm:"type:text"`
	Scenarios   []TestScenario `gorm:"many2many:test_run_scenarios"`
	Labels      []Label        `gorm:"many2many:test_run_labels"`
	Results     []TestResult
	CreatedByID *uint
	UpdatedByID *uint
	CreatedAt   time.Time      `gorm:"index"`
	UpdatedAt   time.Time
}

// TestResult is an immutable outcome record attached to a TestRun.
type TestResult struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TestRunID uint      `gorm:"not null;index" json:"-"`
	Status    string    `gorm:"size:10;not null;default:INFO;index" json:"status"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// allModels lists every migrated table in dependency order.
func allModels() []any {
	return []any{
		&User{},
		&Session{},
		&APIKey{},
		&Capability{},
		&Label{},
		&TestType{},
		&Relay{},
		&TestPC{},
		&Board{},
		&PCStats{},
		&BoardLog{},
		&TestCase{},
		&TestScenario{},
		&TestRun{},
		&TestResult{},
	}
}
