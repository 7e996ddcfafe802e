package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RelayFilter narrows relay listings by exact match.
type RelayFilter struct {
	Status    *string `mapstructure:"status"`
	ModelType *string `mapstructure:"model_type"`
}

// TestPCFilter narrows test PC listings by exact match.
type TestPCFilter struct {
	Status    *string `mapstructure:"status"`
	OSVersion *string `mapstructure:"os_version"`
}

// BoardFilter narrows board listings. Name and Project match as
// case-insensitive substrings; Capabilities matches boards holding any
// of the listed capabilities.
type BoardFilter struct {
	Status       *string `mapstructure:"status"`
	Name         *string `mapstructure:"name"`
	Project      *string `mapstructure:"project"`
	Platform     *string `mapstructure:"platform"`
	TestFarm     *string `mapstructure:"test_farm"`
	IsLocked     *bool   `mapstructure:"is_locked"`
	IsAlive      *bool   `mapstructure:"is_alive"`
	RelayID      *string `mapstructure:"relay_id"`
	TestPCID     *string `mapstructure:"test_pc_id"`
	Capabilities []uint  `mapstructure:"capabilities"`
}

// PCStatsFilter narrows PC stats listings.
type PCStatsFilter struct {
	Status   *string `mapstructure:"status"`
	TestPCID *string `mapstructure:"test_pc_id"`
	Hostname *string `mapstructure:"hostname"`
}

// BoardLogFilter narrows the administrative board log listing.
type BoardLogFilter struct {
	Level   *string `mapstructure:"level"`
	BoardID *string `mapstructure:"board_id"`
}

var relayList = listSpec{
	search: []string{ilike("relay_name"), ilike("ip_address"), ilike("mac_address")},
	order: map[string]string{
		"relay_name":      "relay_name",
		"status":          "status",
		"created_at":      "created_at",
		"updated_at":      "updated_at",
		"last_checked_at": "last_checked_at",
	},
	defaults: []clause.OrderByColumn{orderBy("relay_name", false)},
}

var testPCList = listSpec{
	search: []string{ilike("hostname"), ilike("ip_address"), ilike("domain_name")},
	order: map[string]string{
		"hostname":   "hostname",
		"status":     "status",
		"os_version": "os_version",
		"created_at": "created_at",
		"updated_at": "updated_at",
	},
	defaults: []clause.OrderByColumn{orderBy("hostname", false)},
}

var boardList = listSpec{
	search: []string{
		ilike("name"),
		ilike("hardware_serial_number"),
		ilike("project"),
		ilike("platform"),
		ilike("test_farm"),
		ilike("board_ip"),
	},
	order: map[string]string{
		"name":                   "name",
		"hardware_serial_number": "hardware_serial_number",
		"project":                "project",
		"platform":               "platform",
		"status":                 "status",
		"test_farm":              "test_farm",
		"created_at":             "created_at",
		"updated_at":             "updated_at",
		"last_heartbeat_at":      "last_heartbeat_at",
	},
	defaults: []clause.OrderByColumn{orderBy("name", false)},
}

var pcStatsList = listSpec{
	search: []string{
		"test_pc_id IN (SELECT id FROM test_pcs WHERE " + ilike("hostname") + ")",
		ilike("status"),
	},
	order: map[string]string{
		"timestamp":      "timestamp",
		"status":         "status",
		"cpu_percent":    "cpu_percent",
		"memory_percent": "memory_percent",
		"disk_percent":   "disk_percent",
	},
	defaults: []clause.OrderByColumn{orderBy("timestamp", true)},
}

var boardLogList = listSpec{
	search: []string{
		"board_id IN (SELECT id FROM boards WHERE " + ilike("name") + ")",
		ilike("message"),
	},
	order: map[string]string{
		"created_at": "created_at",
		"level":      "level",
	},
	defaults: []clause.OrderByColumn{orderBy("created_at", true)},
}

func preloadBoard(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Relay").
		Preload("TestPC").
		Preload("Capabilities", func(db *gorm.DB) *gorm.DB {
			return db.Order("name")
		})
}

// --- Relay ---

func (s *store) ListRelays(
	ctx context.Context, f RelayFilter, opts ListOptions,
) (*Page[Relay], error) {
	q := s.db.Model(&Relay{})

	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	if f.ModelType != nil {
		q = q.Where("model_type = ?", *f.ModelType)
	}

	page, err := list[Relay](ctx, q, relayList, opts, nil)
	if err != nil {
		return nil, fmt.Errorf("listing relays: %w", err)
	}

	return page, nil
}

func (s *store) GetRelay(ctx context.Context, id string) (*Relay, error) {
	r, err := getByID[Relay](ctx, s.db, id, nil)
	if err != nil {
		return nil, fmt.Errorf("getting relay: %w", err)
	}

	return r, nil
}

func (s *store) CreateRelay(ctx context.Context, r *Relay) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("creating relay: %w", translate(err, "id"))
	}

	return nil
}

func (s *store) UpdateRelay(ctx context.Context, r *Relay) error {
	if err := updateRow(s.db.WithContext(ctx), r); err != nil {
		return fmt.Errorf("updating relay: %w", translate(err, "id"))
	}

	return nil
}

// DeleteRelay deletes a relay; boards it served are detached, not deleted.
func (s *store) DeleteRelay(ctx context.Context, id string) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&Board{}).
			Where("relay_id = ?", id).
			UpdateColumn("relay_id", nil).Error; err != nil {
			return err
		}

		return deleteByID[Relay](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting relay: %w", err)
	}

	return nil
}

// --- TestPC ---

func (s *store) ListTestPCs(
	ctx context.Context, f TestPCFilter, opts ListOptions,
) (*Page[TestPC], error) {
	q := s.db.Model(&TestPC{})

	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	if f.OSVersion != nil {
		q = q.Where("os_version = ?", *f.OSVersion)
	}

	page, err := list[TestPC](ctx, q, testPCList, opts, nil)
	if err != nil {
		return nil, fmt.Errorf("listing test pcs: %w", err)
	}

	return page, nil
}

func (s *store) GetTestPC(ctx context.Context, id string) (*TestPC, error) {
	pc, err := getByID[TestPC](ctx, s.db, id, nil)
	if err != nil {
		return nil, fmt.Errorf("getting test pc: %w", err)
	}

	return pc, nil
}

func (s *store) GetTestPCByHostname(
	ctx context.Context, hostname string,
) (*TestPC, error) {
	var pc TestPC
	if err := s.db.WithContext(ctx).
		Where("LOWER(hostname) = ?", strings.ToLower(hostname)).
		Order("created_at ASC").
		First(&pc).Error; err != nil {
		return nil, fmt.Errorf("getting test pc by hostname: %w", translate(err, "hostname"))
	}

	return &pc, nil
}

func (s *store) CreateTestPC(ctx context.Context, pc *TestPC) error {
	if err := s.db.WithContext(ctx).Create(pc).Error; err != nil {
		return fmt.Errorf("creating test pc: %w", translate(err, "id"))
	}

	return nil
}

func (s *store) UpdateTestPC(ctx context.Context, pc *TestPC) error {
	if err := updateRow(s.db.WithContext(ctx), pc); err != nil {
		return fmt.Errorf("updating test pc: %w", translate(err, "id"))
	}

	return nil
}

// DeleteTestPC deletes a test PC and its stats samples; boards it drove
// are detached.
func (s *store) DeleteTestPC(ctx context.Context, id string) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&Board{}).
			Where("test_pc_id = ?", id).
			UpdateColumn("test_pc_id", nil).Error; err != nil {
			return err
		}

		if err := tx.Where("test_pc_id = ?", id).
			Delete(&PCStats{}).Error; err != nil {
			return err
		}

		return deleteByID[TestPC](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting test pc: %w", err)
	}

	return nil
}

// --- Board ---

func (s *store) ListBoards(
	ctx context.Context, f BoardFilter, opts ListOptions,
) (*Page[Board], error) {
	q := s.db.Model(&Board{})

	for column, value := range map[string]*string{
		"status":     f.Status,
		"platform":   f.Platform,
		"test_farm":  f.TestFarm,
		"relay_id":   f.RelayID,
		"test_pc_id": f.TestPCID,
	} {
		if value != nil {
			q = q.Where(column+" = ?", *value)
		}
	}

	if f.Name != nil {
		q = q.Where(ilike("name"), contains(*f.Name))
	}

	if f.Project != nil {
		q = q.Where(ilike("project"), contains(*f.Project))
	}

	if f.IsLocked != nil {
		q = q.Where("is_locked = ?", *f.IsLocked)
	}

	if f.IsAlive != nil {
		q = q.Where("is_alive = ?", *f.IsAlive)
	}

	if len(f.Capabilities) > 0 {
		// Unknown capability ids are rejected rather than matching nothing.
		if _, err := resolveMembers[Capability](
			s.db.WithContext(ctx), "capabilities", f.Capabilities,
		); err != nil {
			return nil, err
		}

		q = q.Where("id IN (?)", s.db.Table("board_capabilities").
			Select("board_id").
			Where("capability_id IN ?", f.Capabilities))
	}

	page, err := list[Board](ctx, q, boardList, opts, preloadBoard)
	if err != nil {
		return nil, fmt.Errorf("listing boards: %w", err)
	}

	return page, nil
}

func (s *store) GetBoard(ctx context.Context, id string) (*Board, error) {
	b, err := getByID[Board](ctx, s.db, id, preloadBoard)
	if err != nil {
		return nil, fmt.Errorf("getting board: %w", err)
	}

	return b, nil
}

// checkBoardRefs verifies the relay and test PC a board points at exist.
func checkBoardRefs(tx *gorm.DB, b *Board) error {
	if b.RelayID != nil {
		ok, err := exists[Relay](tx, *b.RelayID)
		if err != nil {
			return err
		}

		if !ok {
			return invalidReference("relay_id", *b.RelayID)
		}
	}

	if b.TestPCID != nil {
		ok, err := exists[TestPC](tx, *b.TestPCID)
		if err != nil {
			return err
		}

		if !ok {
			return invalidReference("test_pc_id", *b.TestPCID)
		}
	}

	return nil
}

// CreateBoard inserts a board and its capability set, then reloads it
// with its relations.
func (s *store) CreateBoard(
	ctx context.Context, b *Board, capabilityIDs []uint,
) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := checkBoardRefs(tx, b); err != nil {
			return err
		}

		caps, err := resolveMembers[Capability](tx, "capability_ids", capabilityIDs)
		if err != nil {
			return err
		}

		b.Relay, b.TestPC, b.Capabilities = nil, nil, nil

		if err := tx.Omit(clause.Associations).Create(b).Error; err != nil {
			return translate(err, "id")
		}

		if len(caps) > 0 {
			return replaceMembers(tx, b, "Capabilities", caps)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("creating board: %w", err)
	}

	return s.reloadBoard(ctx, b)
}

// UpdateBoard writes every board column and, when capabilityIDs is not
// nil, replaces the capability set.
func (s *store) UpdateBoard(
	ctx context.Context, b *Board, capabilityIDs []uint,
) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := checkBoardRefs(tx, b); err != nil {
			return err
		}

		b.Relay, b.TestPC, b.Capabilities = nil, nil, nil

		if err := updateRow(tx, b); err != nil {
			return translate(err, "id")
		}

		return setMembers[Capability](tx, b, "Capabilities", "capability_ids", capabilityIDs)
	})
	if err != nil {
		return fmt.Errorf("updating board: %w", err)
	}

	return s.reloadBoard(ctx, b)
}

func (s *store) reloadBoard(ctx context.Context, b *Board) error {
	fresh, err := s.GetBoard(ctx, b.ID)
	if err != nil {
		return err
	}

	*b = *fresh

	return nil
}

// DeleteBoard deletes a board with its logs and capability memberships.
func (s *store) DeleteBoard(ctx context.Context, id string) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("board_id = ?", id).
			Delete(&BoardLog{}).Error; err != nil {
			return err
		}

		if err := tx.Exec(
			"DELETE FROM board_capabilities WHERE board_id = ?", id,
		).Error; err != nil {
			return err
		}

		return deleteByID[Board](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting board: %w", err)
	}

	return nil
}

// --- BoardLog ---

// ListRecentBoardLogs returns at most limit logs of a board, newest
// first. The query is bounded by the (board_id, created_at) index. An
// unknown board has no logs.
func (s *store) ListRecentBoardLogs(
	ctx context.Context, boardID string, limit int,
) ([]BoardLog, error) {
	logs := make([]BoardLog, 0, limit)

	err := s.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("listing board logs: %w", err)
	}

	return logs, nil
}

func (s *store) ListBoardLogs(
	ctx context.Context, f BoardLogFilter, opts ListOptions,
) (*Page[BoardLog], error) {
	q := s.db.Model(&BoardLog{})

	if f.Level != nil {
		q = q.Where("level = ?", strings.ToUpper(*f.Level))
	}

	if f.BoardID != nil {
		q = q.Where("board_id = ?", *f.BoardID)
	}

	page, err := list[BoardLog](ctx, q, boardLogList, opts, nil)
	if err != nil {
		return nil, fmt.Errorf("listing board logs: %w", err)
	}

	return page, nil
}

// CreateBoardLog appends a log line to an existing board.
func (s *store) CreateBoardLog(ctx context.Context, l *BoardLog) error {
	if l.Level == "" {
		l.Level = LevelInfo
	}

	if !ValidLogLevel(l.Level) {
		return fieldError("level", "%q is not a valid choice", l.Level)
	}

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		ok, err := exists[Board](tx, l.BoardID)
		if err != nil {
			return err
		}

		if !ok {
			return ErrNotFound
		}

		return tx.Create(l).Error
	})
	if err != nil {
		return fmt.Errorf("creating board log: %w", err)
	}

	return nil
}

// --- PCStats ---

func (s *store) ListPCStats(
	ctx context.Context, f PCStatsFilter, opts ListOptions,
) (*Page[PCStats], error) {
	q := s.db.Model(&PCStats{})

	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	if f.TestPCID != nil {
		q = q.Where("test_pc_id = ?", *f.TestPCID)
	}

	if f.Hostname != nil {
		q = q.Where("test_pc_id IN (?)", s.db.Model(&TestPC{}).
			Select("id").
			Where("hostname = ?", *f.Hostname))
	}

	page, err := list[PCStats](ctx, q, pcStatsList, opts, func(db *gorm.DB) *gorm.DB {
		return db.Preload("TestPC")
	})
	if err != nil {
		return nil, fmt.Errorf("listing pc stats: %w", err)
	}

	return page, nil
}

func (s *store) GetPCStats(ctx context.Context, id uint) (*PCStats, error) {
	st, err := getByID[PCStats](ctx, s.db, id, func(db *gorm.DB) *gorm.DB {
		return db.Preload("TestPC")
	})
	if err != nil {
		return nil, fmt.Errorf("getting pc stats: %w", err)
	}

	return st, nil
}

// RecordPCStats appends a sample and refreshes the owning test PC's
// heartbeat and status in the same transaction.
func (s *store) RecordPCStats(ctx context.Context, st *PCStats) error {
	if st.Timestamp.IsZero() {
		st.Timestamp = time.Now().UTC()
	}

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&TestPC{}).
			Where("id = ?", st.TestPCID).
			Updates(map[string]any{
				"last_heartbeat_at": st.Timestamp,
				"status":            st.Status,
			})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		st.TestPC = nil

		return tx.Create(st).Error
	})
	if err != nil {
		return fmt.Errorf("recording pc stats: %w", err)
	}

	return nil
}
