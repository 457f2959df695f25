package persist

import (
	"strings"

	"entgo.io/ent/dialect/sql/schema"

	fontschema "fontshelf/ent/schema"
)

const fontsTableName = "fonts"

var (
	// FontsColumns holds the columns for the "fonts" table, read from the
	// ent definition of Font.
	FontsColumns = entColumns()
	// FontsTable holds the schema information for the "fonts" table.
	FontsTable = &schema.Table{
		Name:       fontsTableName,
		Columns:    FontsColumns,
		PrimaryKey: []*schema.Column{FontsColumns[0]},
		Indexes:    entIndexes(FontsColumns),
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		FontsTable,
	}
)

func entColumns() []*schema.Column {
	fields := (fontschema.Font{}).Fields()
	cols := make([]*schema.Column, 0, len(fields))
	for _, f := range fields {
		d := f.Descriptor()
		name := d.Name
		if d.StorageKey != "" {
			name = d.StorageKey
		}
		cols = append(cols, &schema.Column{
			Name:     name,
			Type:     d.Info.Type,
			Size:     int64(d.Size),
			Unique:   d.Unique,
			Nullable: d.Optional,
		})
	}
	return cols
}

func entIndexes(cols []*schema.Column) []*schema.Index {
	byName := make(map[string]*schema.Column, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}
	var out []*schema.Index
	for _, i := range (fontschema.Font{}).Indexes() {
		d := i.Descriptor()
		idx := &schema.Index{Name: d.StorageKey, Unique: d.Unique}
		if idx.Name == "" {
			idx.Name = "font_" + strings.Join(d.Fields, "_")
		}
		for _, f := range d.Fields {
			idx.Columns = append(idx.Columns, byName[f])
		}
		out = append(out, idx)
	}
	return out
}

func columnNames() []string {
	names := make([]string, len(FontsColumns))
	for i, c := range FontsColumns {
		names[i] = c.Name
	}
	return names
}
