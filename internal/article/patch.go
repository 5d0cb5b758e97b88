package article

import "time"

// Patch carries the optional fields of a partial update. Nil fields are left untouched.
// A CategoryID pointing at zero clears the category.
type Patch struct {
	Title        *string
	Introduction *string
	Content      *string
	CategoryID   *uint
	ThumbnailURL *string
	Status       *Status
}

type patchColumn struct {
	column string
	value  func(Patch) (any, bool)
}

// patchColumns maps every patchable field to its column.
var patchColumns = []patchColumn{
	{column: "title", value: func(p Patch) (any, bool) { return deref(p.Title) }},
	{column: "introduction", value: func(p Patch) (any, bool) { return deref(p.Introduction) }},
	{column: "content", value: func(p Patch) (any, bool) { return deref(p.Content) }},
	{column: "category_id", value: func(p Patch) (any, bool) {
		if p.CategoryID == nil {
			return nil, false
		}
		if *p.CategoryID == 0 {
			return nil, true
		}
		return *p.CategoryID, true
	}},
	{column: "thumbnail_url", value: func(p Patch) (any, bool) { return deref(p.ThumbnailURL) }},
	{column: "status", value: func(p Patch) (any, bool) { return deref(p.Status) }},
}

func deref[T any](v *T) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

// Columns lists the columns the patch writes, in table order, excluding updated_at.
func (p Patch) Columns() []string {
	columns := make([]string, 0, len(patchColumns))
	for _, pc := range patchColumns {
		if _, ok := pc.value(p); ok {
			columns = append(columns, pc.column)
		}
	}
	return columns
}

// Empty reports whether no field is supplied.
func (p Patch) Empty() bool {
	return len(p.Columns()) == 0
}

// Assignments returns the column values to write. updated_at is always stamped with now.
func (p Patch) Assignments(now time.Time) map[string]any {
	set := make(map[string]any, len(patchColumns)+1)
	for _, pc := range patchColumns {
		if v, ok := pc.value(p); ok {
			set[pc.column] = v
		}
	}
	set["updated_at"] = now
	return set
}
