package pgstore

import "time"

// casObject is a blob stored once, globally, keyed by its content key.
// Visibility per organization is tracked separately in casVisibility,
// matching spec.md §4.3: bytes are content-addressed and shared, but a
// reader's ability to fetch them is scoped to their own organization.
type casObject struct {
	Key       string `gorm:"primaryKey;size:64"`
	Body      []byte `gorm:"type:bytea"`
	CreatedAt time.Time
}

func (casObject) TableName() string { return "cas_objects" }

// casVisibility records that orgID has written (or independently produced)
// Key, making it readable by that organization going forward.
type casVisibility struct {
	OrgID     string `gorm:"primaryKey;size:128"`
	Key       string `gorm:"primaryKey;size:64"`
	WrittenAt time.Time
}

func (casVisibility) TableName() string { return "cas_visibility" }

// savedUnitRow is one organization's Saved Unit, keyed by unit key. Payload
// holds the full savedunit.SavedUnit encoded via its wire MarshalJSON, so
// the sidecar's kind-specific shape round-trips without a second table per
// unit kind.
type savedUnitRow struct {
	OrgID     string `gorm:"primaryKey;size:128"`
	UnitKey   string `gorm:"primaryKey;size:64"`
	Kind      string `gorm:"size:64"`
	Payload   []byte `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (savedUnitRow) TableName() string { return "saved_units" }

// allModels lists every model AutoMigrate must create, mirroring the
// teacher's models.AllModels() convention.
func allModels() []any {
	return []any{
		&casObject{},
		&casVisibility{},
		&savedUnitRow{},
	}
}
