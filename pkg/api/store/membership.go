package store

import (
	"fmt"
	"slices"
	"strconv"

	"gorm.io/gorm"
)

// resolveMembers loads the rows of T named by ids. Every id must exist,
// otherwise a ValidationError naming field and the missing ids is
// returned and nothing is loaded. Duplicate ids collapse to one member.
func resolveMembers[T any](tx *gorm.DB, field string, ids []uint) ([]T, error) {
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	rows := make([]T, 0, len(unique))
	if len(unique) == 0 {
		return rows, nil
	}

	var found []uint
	if err := tx.Model(new(T)).
		Where("id IN ?", unique).
		Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("resolving %s: %w", field, err)
	}

	if len(found) != len(unique) {
		missing := make([]string, 0, len(unique)-len(found))

		for _, id := range unique {
			if !slices.Contains(found, id) {
				missing = append(missing, strconv.FormatUint(uint64(id), 10))
			}
		}

		return nil, invalidReference(field, missing...)
	}

	if err := tx.Where("id IN ?", unique).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading %s: %w", field, err)
	}

	return rows, nil
}

// replaceMembers makes owner's association exactly equal to members.
// Rows no longer listed are unlinked and new ones are linked; the
// associated records themselves are not modified.
func replaceMembers[T any](tx *gorm.DB, owner any, association string, members []T) error {
	assoc := tx.Model(owner).Omit(association + ".*").Association(association)

	if len(members) == 0 {
		if err := assoc.Clear(); err != nil {
			return fmt.Errorf("clearing %s: %w", association, err)
		}

		return nil
	}

	if err := assoc.Replace(members); err != nil {
		return fmt.Errorf("replacing %s: %w", association, err)
	}

	return nil
}

// setMembers resolves ids and replaces the association in one step. A
// nil ids slice leaves the association untouched.
func setMembers[T any](
	tx *gorm.DB, owner any, association, field string, ids []uint,
) error {
	if ids == nil {
		return nil
	}

	members, err := resolveMembers[T](tx, field, ids)
	if err != nil {
		return err
	}

	return replaceMembers(tx, owner, association, members)
}
