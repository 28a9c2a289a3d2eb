package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Outcome is a completed assessment kept on this device. Individual answers
// are never stored.
type Outcome struct {
	ent.Schema
}

func (Outcome) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			Comment("Local UUID"),
		field.String("session_id").
			Unique().
			NotEmpty(),
		field.Float("score"),
		field.String("score_source").
			Comment("server or derived"),
		field.String("risk_level"),
		field.String("server_level").
			Default("").
			Comment("Tier reported by the service, if any"),
		field.String("summary").
			Default(""),
		field.Int("static_answered").
			Default(0),
		field.Int("dynamic_answered").
			Default(0),
		field.String("fail_safe").
			Default("").
			Comment("Why the follow-up loop ended early"),
		field.Int64("completed_at").
			Comment("Unix milliseconds"),
	}
}

func (Outcome) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("completed_at"),
	}
}
