package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Tables mirror the entities in ent/schema. TestTablesMatchEntSchema keeps
// the two in step.
var (
	outcomesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "session_id", Type: field.TypeString, Unique: true},
		{Name: "score", Type: field.TypeFloat64},
		{Name: "score_source", Type: field.TypeString},
		{Name: "risk_level", Type: field.TypeString},
		{Name: "server_level", Type: field.TypeString, Default: ""},
		{Name: "summary", Type: field.TypeString, Default: ""},
		{Name: "static_answered", Type: field.TypeInt, Default: 0},
		{Name: "dynamic_answered", Type: field.TypeInt, Default: 0},
		{Name: "fail_safe", Type: field.TypeString, Default: ""},
		{Name: "completed_at", Type: field.TypeInt64},
	}
	outcomesTable = &schema.Table{
		Name:       "outcomes",
		Columns:    outcomesColumns,
		PrimaryKey: []*schema.Column{outcomesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "outcome_completed_at", Columns: []*schema.Column{outcomesColumns[10]}},
		},
	}

	sessionEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeInt64},
		{Name: "session_id", Type: field.TypeString},
		{Name: "from_state", Type: field.TypeString},
		{Name: "to_state", Type: field.TypeString},
		{Name: "reason", Type: field.TypeString, Default: ""},
	}
	sessionEventsTable = &schema.Table{
		Name:       "session_events",
		Columns:    sessionEventsColumns,
		PrimaryKey: []*schema.Column{sessionEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "sessionevent_sequence", Columns: []*schema.Column{sessionEventsColumns[1]}},
			{Name: "sessionevent_timestamp", Columns: []*schema.Column{sessionEventsColumns[2]}},
			{Name: "sessionevent_session_id_sequence", Columns: []*schema.Column{sessionEventsColumns[3], sessionEventsColumns[1]}},
		},
	}

	tables = []*schema.Table{outcomesTable, sessionEventsTable}
)

func columnNames(cols []*schema.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// migrate creates missing tables, columns and indexes.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	return m.Create(ctx, tables...)
}
