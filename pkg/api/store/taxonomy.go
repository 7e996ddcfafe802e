package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CapabilityFilter narrows capability listings.
type CapabilityFilter struct {
	IsActive *bool `mapstructure:"is_active"`
}

var capabilityList = listSpec{
	search: []string{ilike("name"), ilike("description")},
	order: map[string]string{
		"name":       "name",
		"created_at": "created_at",
		"updated_at": "updated_at",
	},
	defaults: []clause.OrderByColumn{orderBy("name", false)},
}

var labelList = listSpec{
	search:   []string{ilike("name")},
	order:    map[string]string{"name": "name"},
	defaults: []clause.OrderByColumn{orderBy("name", false)},
}

var testTypeList = listSpec{
	search:   []string{ilike("name"), ilike("description")},
	order:    map[string]string{"name": "name"},
	defaults: []clause.OrderByColumn{orderBy("name", false)},
}

// --- Capability ---

func (s *store) ListCapabilities(
	ctx context.Context, f CapabilityFilter, opts ListOptions,
) (*Page[Capability], error) {
	q := s.db.Model(&Capability{})
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}

	page, err := list[Capability](ctx, q, capabilityList, opts, nil)
	if err != nil {
		return nil, fmt.Errorf("listing capabilities: %w", err)
	}

	return page, nil
}

func (s *store) GetCapability(ctx context.Context, id uint) (*Capability, error) {
	c, err := getByID[Capability](ctx, s.db, id, nil)
	if err != nil {
		return nil, fmt.Errorf("getting capability: %w", err)
	}

	return c, nil
}

func (s *store) CreateCapability(ctx context.Context, c *Capability) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("creating capability: %w", translate(err, "name"))
	}

	return nil
}

func (s *store) UpdateCapability(ctx context.Context, c *Capability) error {
	if err := updateRow(s.db.WithContext(ctx), c); err != nil {
		return fmt.Errorf("updating capability: %w", translate(err, "name"))
	}

	return nil
}

// DeleteCapability removes a capability and its board memberships.
func (s *store) DeleteCapability(ctx context.Context, id uint) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(
			"DELETE FROM board_capabilities WHERE capability_id = ?", id,
		).Error; err != nil {
			return err
		}

		return deleteByID[Capability](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting capability: %w", err)
	}

	return nil
}

// --- Label ---

func (s *store) ListLabels(
	ctx context.Context, opts ListOptions,
) (*Page[Label], error) {
	page, err := list[Label](ctx, s.db.Model(&Label{}), labelList, opts, nil)
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}

	return page, nil
}

func (s *store) GetLabel(ctx context.Context, id uint) (*Label, error) {
	l, err := getByID[Label](ctx, s.db, id, nil)
	if err != nil {
		return nil, fmt.Errorf("getting label: %w", err)
	}

	return l, nil
}

func (s *store) CreateLabel(ctx context.Context, l *Label) error {
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("creating label: %w", translate(err, "name"))
	}

	return nil
}

func (s *store) UpdateLabel(ctx context.Context, l *Label) error {
	if err := updateRow(s.db.WithContext(ctx), l); err != nil {
		return fmt.Errorf("updating label: %w", translate(err, "name"))
	}

	return nil
}

// DeleteLabel removes a label from every test case, scenario and run
// that carries it, then deletes it.
func (s *store) DeleteLabel(ctx context.Context, id uint) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		for _, table := range []string{
			"test_case_tags", "test_scenario_labels", "test_run_labels",
		} {
			if err := tx.Exec(
				"DELETE FROM "+table+" WHERE label_id = ?", id,
			).Error; err != nil {
				return err
			}
		}

		return deleteByID[Label](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting label: %w", err)
	}

	return nil
}

// --- TestType ---

func (s *store) ListTestTypes(
	ctx context.Context, opts ListOptions,
) (*Page[TestType], error) {
	page, err := list[TestType](ctx, s.db.Model(&TestType{}), testTypeList, opts, nil)
	if err != nil {
		return nil, fmt.Errorf("listing test types: %w", err)
	}

	return page, nil
}

func (s *store) GetTestType(ctx context.Context, id uint) (*TestType, error) {
	t, err := getByID[TestType](ctx, s.db, id, nil)
	if err != nil {
		return nil, fmt.Errorf("getting test type: %w", err)
	}

	return t, nil
}

func (s *store) CreateTestType(ctx context.Context, t *TestType) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("creating test type: %w", translate(err, "name"))
	}

	return nil
}

func (s *store) UpdateTestType(ctx context.Context, t *TestType) error {
	if err := updateRow(s.db.WithContext(ctx), t); err != nil {
		return fmt.Errorf("updating test type: %w", translate(err, "name"))
	}

	return nil
}

// DeleteTestType deletes a type; test cases of that type become untyped.
func (s *store) DeleteTestType(ctx context.Context, id uint) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&TestCase{}).
			Where("test_type_id = ?", id).
			UpdateColumn("test_type_id", nil).Error; err != nil {
			return err
		}

		return deleteByID[TestType](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting test type: %w", err)
	}

	return nil
}
