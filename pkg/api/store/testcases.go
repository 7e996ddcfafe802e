package store

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TestCaseFilter narrows test case listings.
type TestCaseFilter struct {
	TestType *uint `mapstructure:"test_type"`
	IsActive *bool `mapstructure:"is_active"`
}

var testCaseList = listSpec{
	search: []string{ilike("title"), ilike("description")},
	order: map[string]string{
		"title":      "title",
		"created_at": "created_at",
		"updated_at": "updated_at",
	},
	defaults: []clause.OrderByColumn{orderBy("title", false)},
}

func preloadTestCase(db *gorm.DB) *gorm.DB {
	return db.
		Preload("TestType").
		Preload("Tags", func(db *gorm.DB) *gorm.DB {
			return db.Order("name")
		})
}

func (s *store) ListTestCases(
	ctx context.Context, f TestCaseFilter, opts ListOptions,
) (*Page[TestCase], error) {
	q := s.db.Model(&TestCase{})

	if f.TestType != nil {
		ok, err := exists[TestType](s.db.WithContext(ctx), *f.TestType)
		if err != nil {
			return nil, fmt.Errorf("listing test cases: %w", err)
		}

		if !ok {
			return nil, fieldError("test_type",
				"select a valid choice; %d is not one of the available choices", *f.TestType)
		}

		q = q.Where("test_type_id = ?", *f.TestType)
	}

	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}

	page, err := list[TestCase](ctx, q, testCaseList, opts, preloadTestCase)
	if err != nil {
		return nil, fmt.Errorf("listing test cases: %w", err)
	}

	return page, nil
}

func (s *store) GetTestCase(ctx context.Context, id uint) (*TestCase, error) {
	tc, err := getByID[TestCase](ctx, s.db, id, preloadTestCase)
	if err != nil {
		return nil, fmt.Errorf("getting test case: %w", err)
	}

	return tc, nil
}

func checkTestType(tx *gorm.DB, id *uint) error {
	if id == nil {
		return nil
	}

	ok, err := exists[TestType](tx, *id)
	if err != nil {
		return err
	}

	if !ok {
		return invalidReference("test_type_id", strconv.FormatUint(uint64(*id), 10))
	}

	return nil
}

// CreateTestCase inserts a test case with its tag set.
func (s *store) CreateTestCase(
	ctx context.Context, tc *TestCase, tagIDs []uint,
) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := checkTestType(tx, tc.TestTypeID); err != nil {
			return err
		}

		tags, err := resolveMembers[Label](tx, "tag_ids", tagIDs)
		if err != nil {
			return err
		}

		tc.TestType, tc.Tags = nil, nil

		if err := tx.Omit(clause.Associations).Create(tc).Error; err != nil {
			return err
		}

		if len(tags) > 0 {
			return replaceMembers(tx, tc, "Tags", tags)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("creating test case: %w", err)
	}

	return s.reloadTestCase(ctx, tc)
}

// UpdateTestCase writes every column and, when tagIDs is not nil,
// replaces the tag set.
func (s *store) UpdateTestCase(
	ctx context.Context, tc *TestCase, tagIDs []uint,
) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := checkTestType(tx, tc.TestTypeID); err != nil {
			return err
		}

		tc.TestType, tc.Tags = nil, nil

		if err := updateRow(tx, tc, "created_by_id"); err != nil {
			return err
		}

		return setMembers[Label](tx, tc, "Tags", "tag_ids", tagIDs)
	})
	if err != nil {
		return fmt.Errorf("updating test case: %w", err)
	}

	return s.reloadTestCase(ctx, tc)
}

func (s *store) reloadTestCase(ctx context.Context, tc *TestCase) error {
	fresh, err := s.GetTestCase(ctx, tc.ID)
	if err != nil {
		return err
	}

	*tc = *fresh

	return nil
}

// DeleteTestCase removes a test case, its tags and its scenario
// memberships.
func (s *store) DeleteTestCase(ctx context.Context, id uint) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		for _, table := range []string{"test_case_tags", "test_scenario_test_cases"} {
			if err := tx.Exec(
				"DELETE FROM "+table+" WHERE test_case_id = ?", id,
			).Error; err != nil {
				return err
			}
		}

		return deleteByID[TestCase](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting test case: %w", err)
	}

	return nil
}
