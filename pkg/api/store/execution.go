package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScenarioMembers carries the related id sets written with a scenario.
type ScenarioMembers struct {
	TestCaseIDs []uint
	LabelIDs    []uint
}

// RunMembers carries the related id sets written with a test run.
type RunMembers struct {
	ScenarioIDs []uint
	LabelIDs    []uint
}

// TestRunFilter narrows test run listings. Name matches as a
// case-insensitive substring; Scenario and Label match membership.
type TestRunFilter struct {
	Name     *string `mapstructure:"name"`
	Scenario *uint   `mapstructure:"scenario"`
	Label    *uint   `mapstructure:"label"`
}

// TestResultFilter narrows the administrative test result listing.
type TestResultFilter struct {
	Status  *string `mapstructure:"status"`
	TestRun *uint   `mapstructure:"test_run"`
}

var testScenarioList = listSpec{
	search: []string{
		ilike("name"),
		ilike("description"),
		"id IN (SELECT test_scenario_id FROM test_scenario_test_cases" +
			" WHERE test_case_id IN (SELECT id FROM test_cases WHERE " + ilike("title") + "))",
	},
	order: map[string]string{
		"name":       "name",
		"created_at": "created_at",
		"updated_at": "updated_at",
	},
	defaults: []clause.OrderByColumn{orderBy("name", false)},
}

var testRunList = listSpec{
	search: []string{ilike("name"), ilike("description")},
	order: map[string]string{
		"name":       "name",
		"created_at": "created_at",
		"updated_at": "updated_at",
	},
	defaults: []clause.OrderByColumn{orderBy("created_at", true)},
}

var testResultList = listSpec{
	search: []string{ilike("message")},
	order: map[string]string{
		"created_at": "created_at",
		"status":     "status",
	},
	defaults: []clause.OrderByColumn{orderBy("created_at", true)},
}

func byName(db *gorm.DB) *gorm.DB { return db.Order("name") }

func byID(db *gorm.DB) *gorm.DB { return db.Order("id") }

func preloadScenario(db *gorm.DB) *gorm.DB {
	return db.
		Preload("TestCases", byID).
		Preload("Labels", byName)
}

func preloadRun(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Scenarios", byID).
		Preload("Scenarios.TestCases", byID).
		Preload("Scenarios.Labels", byName).
		Preload("Labels", byName).
		Preload("Results", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at").Order("id")
		})
}

// --- TestScenario ---

func (s *store) ListTestScenarios(
	ctx context.Context, opts ListOptions,
) (*Page[TestScenario], error) {
	page, err := list[TestScenario](
		ctx, s.db.Model(&TestScenario{}), testScenarioList, opts, preloadScenario,
	)
	if err != nil {
		return nil, fmt.Errorf("listing test scenarios: %w", err)
	}

	return page, nil
}

func (s *store) GetTestScenario(
	ctx context.Context, id uint,
) (*TestScenario, error) {
	sc, err := getByID[TestScenario](ctx, s.db, id, preloadScenario)
	if err != nil {
		return nil, fmt.Errorf("getting test scenario: %w", err)
	}

	return sc, nil
}

// writeScenarioMembers resolves every id set before touching any
// relation, so an unknown id leaves all of them unchanged. Nil sets are
// skipped.
func writeScenarioMembers(tx *gorm.DB, sc *TestScenario, m ScenarioMembers) error {
	cases, err := resolveMembers[TestCase](tx, "test_case_ids", m.TestCaseIDs)
	if err != nil {
		return err
	}

	labels, err := resolveMembers[Label](tx, "label_ids", m.LabelIDs)
	if err != nil {
		return err
	}

	if m.TestCaseIDs != nil {
		if err := replaceMembers(tx, sc, "TestCases", cases); err != nil {
			return err
		}
	}

	if m.LabelIDs != nil {
		if err := replaceMembers(tx, sc, "Labels", labels); err != nil {
			return err
		}
	}

	return nil
}

// CreateTestScenario inserts a scenario with its test case and label sets.
func (s *store) CreateTestScenario(
	ctx context.Context, sc *TestScenario, m ScenarioMembers,
) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		sc.TestCases, sc.Labels = nil, nil

		if err := tx.Omit(clause.Associations).Create(sc).Error; err != nil {
			return err
		}

		return writeScenarioMembers(tx, sc, m)
	})
	if err != nil {
		return fmt.Errorf("creating test scenario: %w", err)
	}

	return s.reloadScenario(ctx, sc)
}

// UpdateTestScenario writes every column and replaces the id sets that
// are not nil.
func (s *store) UpdateTestScenario(
	ctx context.Context, sc *TestScenario, m ScenarioMembers,
) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		sc.TestCases, sc.Labels = nil, nil

		if err := updateRow(tx, sc, "created_by_id"); err != nil {
			return err
		}

		return writeScenarioMembers(tx, sc, m)
	})
	if err != nil {
		return fmt.Errorf("updating test scenario: %w", err)
	}

	return s.reloadScenario(ctx, sc)
}

func (s *store) reloadScenario(ctx context.Context, sc *TestScenario) error {
	fresh, err := s.GetTestScenario(ctx, sc.ID)
	if err != nil {
		return err
	}

	*sc = *fresh

	return nil
}

// DeleteTestScenario removes a scenario and its memberships in test
// cases, labels and runs.
func (s *store) DeleteTestScenario(ctx context.Context, id uint) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		for _, table := range []string{
			"test_scenario_test_cases", "test_scenario_labels", "test_run_scenarios",
		} {
			if err := tx.Exec(
				"DELETE FROM "+table+" WHERE test_scenario_id = ?", id,
			).Error; err != nil {
				return err
			}
		}

		return deleteByID[TestScenario](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting test scenario: %w", err)
	}

	return nil
}

// --- TestRun ---

func (s *store) ListTestRuns(
	ctx context.Context, f TestRunFilter, opts ListOptions,
) (*Page[TestRun], error) {
	q := s.db.Model(&TestRun{})

	if f.Name != nil {
		q = q.Where(ilike("name"), contains(*f.Name))
	}

	if f.Scenario != nil {
		q = q.Where("id IN (?)", s.db.Table("test_run_scenarios").
			Select("test_run_id").
			Where("test_scenario_id = ?", *f.Scenario))
	}

	if f.Label != nil {
		q = q.Where("id IN (?)", s.db.Table("test_run_labels").
			Select("test_run_id").
			Where("label_id = ?", *f.Label))
	}

	page, err := list[TestRun](ctx, q, testRunList, opts, preloadRun)
	if err != nil {
		return nil, fmt.Errorf("listing test runs: %w", err)
	}

	return page, nil
}

func (s *store) GetTestRun(ctx context.Context, id uint) (*TestRun, error) {
	run, err := getByID[TestRun](ctx, s.db, id, preloadRun)
	if err != nil {
		return nil, fmt.Errorf("getting test run: %w", err)
	}

	return run, nil
}

// writeRunMembers is the TestRun counterpart of writeScenarioMembers.
func writeRunMembers(tx *gorm.DB, run *TestRun, m RunMembers) error {
	scenarios, err := resolveMembers[TestScenario](tx, "scenario_ids", m.ScenarioIDs)
	if err != nil {
		return err
	}

	labels, err := resolveMembers[Label](tx, "label_ids", m.LabelIDs)
	if err != nil {
		return err
	}

	if m.ScenarioIDs != nil {
		if err := replaceMembers(tx, run, "Scenarios", scenarios); err != nil {
			return err
		}
	}

	if m.LabelIDs != nil {
		if err := replaceMembers(tx, run, "Labels", labels); err != nil {
			return err
		}
	}

	return nil
}

// CreateTestRun inserts a run with its scenario and label sets.
func (s *store) CreateTestRun(
	ctx context.Context, run *TestRun, m RunMembers,
) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		run.Scenarios, run.Labels, run.Results = nil, nil, nil

		if err := tx.Omit(clause.Associations).Create(run).Error; err != nil {
			return err
		}

		return writeRunMembers(tx, run, m)
	})
	if err != nil {
		return fmt.Errorf("creating test run: %w", err)
	}

	return s.reloadRun(ctx, run)
}

// UpdateTestRun writes every column and replaces the id sets that are
// not nil. Results are never touched.
func (s *store) UpdateTestRun(
	ctx context.Context, run *TestRun, m RunMembers,
) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		run.Scenarios, run.Labels, run.Results = nil, nil, nil

		if err := updateRow(tx, run, "created_by_id"); err != nil {
			return err
		}

		return writeRunMembers(tx, run, m)
	})
	if err != nil {
		return fmt.Errorf("updating test run: %w", err)
	}

	return s.reloadRun(ctx, run)
}

func (s *store) reloadRun(ctx context.Context, run *TestRun) error {
	fresh, err := s.GetTestRun(ctx, run.ID)
	if err != nil {
		return err
	}

	*run = *fresh

	return nil
}

// DeleteTestRun removes a run with its results and memberships.
func (s *store) DeleteTestRun(ctx context.Context, id uint) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("test_run_id = ?", id).
			Delete(&TestResult{}).Error; err != nil {
			return err
		}

		for _, table := range []string{"test_run_scenarios", "test_run_labels"} {
			if err := tx.Exec(
				"DELETE FROM "+table+" WHERE test_run_id = ?", id,
			).Error; err != nil {
				return err
			}
		}

		return deleteByID[TestRun](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting test run: %w", err)
	}

	return nil
}

// --- TestResult ---

// CreateTestResult appends a result to an existing run.
func (s *store) CreateTestResult(ctx context.Context, r *TestResult) error {
	if r.Status == "" {
		r.Status = LevelInfo
	}

	r.Status = strings.ToUpper(r.Status)

	if !ValidResultStatus(r.Status) {
		return fieldError("status", "%q is not a valid choice", r.Status)
	}

	if strings.TrimSpace(r.Message) == "" {
		return fieldError("message", "this field may not be blank")
	}

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		ok, err := exists[TestRun](tx, r.TestRunID)
		if err != nil {
			return err
		}

		if !ok {
			return ErrNotFound
		}

		return tx.Create(r).Error
	})
	if err != nil {
		return fmt.Errorf("creating test result: %w", err)
	}

	return nil
}

func (s *store) ListTestResults(
	ctx context.Context, f TestResultFilter, opts ListOptions,
) (*Page[TestResult], error) {
	q := s.db.Model(&TestResult{})

	if f.Status != nil {
		q = q.Where("status = ?", strings.ToUpper(*f.Status))
	}

	if f.TestRun != nil {
		q = q.Where("test_run_id = ?", *f.TestRun)
	}

	page, err := list[TestResult](ctx, q, testResultList, opts, nil)
	if err != nil {
		return nil, fmt.Errorf("listing test results: %w", err)
	}

	return page, nil
}
