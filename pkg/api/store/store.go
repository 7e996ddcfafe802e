package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/labkeeper/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for API resources.
//
// Writes that touch several tables (a row plus its many-to-many sets, or
// a parent plus its append-only children) run in a single transaction.
// A nil ids slice passed to a Create/Update method leaves that relation
// untouched; a non-nil empty slice clears it.
type Store interface {
	Start(ctx context.Context) error
	Stop() error
	Ping(ctx context.Context) error

	// User CRUD.
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id uint) error
	SeedUsers(ctx context.Context, users []config.AuthUser) error

	// Session CRUD.
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	UpdateSessionLastActive(ctx context.Context, id uint, t time.Time) error
	DeleteSession(ctx context.Context, token string) error
	DeleteSessionByID(ctx context.Context, id uint) error
	DeleteExpiredSessions(ctx context.Context) error

	// API key CRUD.
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	ListAPIKeysByUser(ctx context.Context, userID uint) ([]APIKey, error)
	ListAllAPIKeys(ctx context.Context) ([]APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uint, t time.Time) error
	DeleteAPIKey(ctx context.Context, id uint) error
	DeleteExpiredAPIKeys(ctx context.Context) error

	// Taxonomy.
	ListCapabilities(ctx context.Context, f CapabilityFilter, opts ListOptions) (*Page[Capability], error)
	GetCapability(ctx context.Context, id uint) (*Capability, error)
	CreateCapability(ctx context.Context, c *Capability) error
	UpdateCapability(ctx context.Context, c *Capability) error
	DeleteCapability(ctx context.Context, id uint) error

	ListLabels(ctx context.Context, opts ListOptions) (*Page[Label], error)
	GetLabel(ctx context.Context, id uint) (*Label, error)
	CreateLabel(ctx context.Context, l *Label) error
	UpdateLabel(ctx context.Context, l *Label) error
	DeleteLabel(ctx context.Context, id uint) error

	ListTestTypes(ctx context.Context, opts ListOptions) (*Page[TestType], error)
	GetTestType(ctx context.Context, id uint) (*TestType, error)
	CreateTestType(ctx context.Context, t *TestType) error
	UpdateTestType(ctx context.Context, t *TestType) error
	DeleteTestType(ctx context.Context, id uint) error

	// Inventory.
	ListRelays(ctx context.Context, f RelayFilter, opts ListOptions) (*Page[Relay], error)
	GetRelay(ctx context.Context, id string) (*Relay, error)
	CreateRelay(ctx context.Context, r *Relay) error
	UpdateRelay(ctx context.Context, r *Relay) error
	DeleteRelay(ctx context.Context, id string) error

	ListTestPCs(ctx context.Context, f TestPCFilter, opts ListOptions) (*Page[TestPC], error)
	GetTestPC(ctx context.Context, id string) (*TestPC, error)
	GetTestPCByHostname(ctx context.Context, hostname string) (*TestPC, error)
	CreateTestPC(ctx context.Context, pc *TestPC) error
	UpdateTestPC(ctx context.Context, pc *TestPC) error
	DeleteTestPC(ctx context.Context, id string) error

	ListBoards(ctx context.Context, f BoardFilter, opts ListOptions) (*Page[Board], error)
	GetBoard(ctx context.Context, id string) (*Board, error)
	CreateBoard(ctx context.Context, b *Board, capabilityIDs []uint) error
	UpdateBoard(ctx context.Context, b *Board, capabilityIDs []uint) error
	DeleteBoard(ctx context.Context, id string) error

	ListRecentBoardLogs(ctx context.Context, boardID string, limit int) ([]BoardLog, error)
	ListBoardLogs(ctx context.Context, f BoardLogFilter, opts ListOptions) (*Page[BoardLog], error)
	CreateBoardLog(ctx context.Context, l *BoardLog) error

	ListPCStats(ctx context.Context, f PCStatsFilter, opts ListOptions) (*Page[PCStats], error)
	GetPCStats(ctx context.Context, id uint) (*PCStats, error)
	RecordPCStats(ctx context.Context, s *PCStats) error

	// Test cases.
	ListTestCases(ctx context.Context, f TestCaseFilter, opts ListOptions) (*Page[TestCase], error)
	GetTestCase(ctx context.Context, id uint) (*TestCase, error)
	CreateTestCase(ctx context.Context, tc *TestCase, tagIDs []uint) error
	UpdateTestCase(ctx context.Context, tc *TestCase, tagIDs []uint) error
	DeleteTestCase(ctx context.Context, id uint) error

	// Execution grouping.
	ListTestScenarios(ctx context.Context, opts ListOptions) (*Page[TestScenario], error)
	GetTestScenario(ctx context.Context, id uint) (*TestScenario, error)
	CreateTestScenario(ctx context.Context, sc *TestScenario, m ScenarioMembers) error
	UpdateTestScenario(ctx context.Context, sc *TestScenario, m ScenarioMembers) error
	DeleteTestScenario(ctx context.Context, id uint) error

	ListTestRuns(ctx context.Context, f TestRunFilter, opts ListOptions) (*Page[TestRun], error)
	GetTestRun(ctx context.Context, id uint) (*TestRun, error)
	CreateTestRun(ctx context.Context, run *TestRun, m RunMembers) error
	UpdateTestRun(ctx context.Context, run *TestRun, m RunMembers) error
	DeleteTestRun(ctx context.Context, id uint) error

	CreateTestResult(ctx context.Context, r *TestResult) error
	ListTestResults(ctx context.Context, f TestResultFilter, opts ListOptions) (*Page[TestResult], error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dialector = postgres.Open(s.cfg.Postgres.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// SQLite allows a single writer; one connection also keeps
		// ":memory:" databases shared across queries.
		sqlDB, err := s.db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.PingContext(ctx)
}

// transaction runs fn inside a database transaction bound to ctx.
func (s *store) transaction(
	ctx context.Context, fn func(tx *gorm.DB) error,
) error {
	return s.db.WithContext(ctx).Transaction(fn)
}
