package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Font holds the schema definition for the Font entity.
type Font struct {
	ent.Schema
}

// Fields of the Font.
func (Font) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			Comment("Collection-assigned identifier"),
		field.Text("file_base64").
			Comment("Font file bytes, base64 encoded"),
		field.String("name").
			Comment("Original file name"),
		field.String("font_type").
			Comment("Declared MIME type"),
		field.String("font_family").
			Optional().
			Comment("Family name read from the name table"),
		field.String("font_subfamily").
			Optional(),
		field.String("checksum").
			Optional().
			Comment("xxh3 of the decoded bytes"),
		field.Time("created_at").
			Default(time.Now).
			Immutable().
			Comment("Ingestion time"),
	}
}

// Indexes of the Font.
func (Font) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("font_family"),
	}
}
