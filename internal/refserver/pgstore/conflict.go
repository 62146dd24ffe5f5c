package pgstore

import (
	"gorm.io/gorm/clause"
)

// onConflictDoNothing builds an ON CONFLICT (cols...) DO NOTHING clause,
// used for the content-addressed objects table where a duplicate write of
// identical bytes is a no-op rather than an error.
func onConflictDoNothing(cols ...string) clause.OnConflict {
	columns := make([]clause.Column, len(cols))
	for i, c := range cols {
		columns[i] = clause.Column{Name: c}
	}
	return clause.OnConflict{Columns: columns, DoNothing: true}
}

// onConflictUpdate builds an ON CONFLICT (cols...) DO UPDATE clause that
// replaces every column, matching spec.md §6's "the server upserts: same
// unit key replaces prior content" save semantics.
func onConflictUpdate(cols ...string) clause.OnConflict {
	columns := make([]clause.Column, len(cols))
	for i, c := range cols {
		columns[i] = clause.Column{Name: c}
	}
	return clause.OnConflict{Columns: columns, UpdateAll: true}
}
