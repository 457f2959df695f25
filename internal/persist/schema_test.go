package persist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type columnSpec struct {
	Name     string
	Type     string
	Size     int64
	Unique   bool
	Nullable bool
}

// Rows are scanned positionally, so the column layout is fixed.
func TestFontsTable_Layout(t *testing.T) {
	want := []columnSpec{
		{Name: "id", Type: "string", Unique: true},
		{Name: "file_base64", Type: "string", Size: 2147483647},
		{Name: "name", Type: "string"},
		{Name: "font_type", Type: "string"},
		{Name: "font_family", Type: "string", Nullable: true},
		{Name: "font_subfamily", Type: "string", Nullable: true},
		{Name: "checksum", Type: "string", Nullable: true},
		{Name: "created_at", Type: "time.Time"},
	}
	var got []columnSpec
	for _, c := range FontsColumns {
		got = append(got, columnSpec{
			Name:     c.Name,
			Type:     c.Type.String(),
			Size:     c.Size,
			Unique:   c.Unique,
			Nullable: c.Nullable,
		})
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fonts columns mismatch (-want +got):\n%s", diff)
	}

	if FontsTable.PrimaryKey[0].Name != "id" {
		t.Errorf("primary key = %q, want id", FontsTable.PrimaryKey[0].Name)
	}

	type indexSpec struct {
		Name    string
		Columns []string
	}
	var gotIdx []indexSpec
	for _, i := range FontsTable.Indexes {
		spec := indexSpec{Name: i.Name}
		for _, c := range i.Columns {
			spec.Columns = append(spec.Columns, c.Name)
		}
		gotIdx = append(gotIdx, spec)
	}
	if diff := cmp.Diff([]indexSpec{{Name: "font_font_family", Columns: []string{"font_family"}}}, gotIdx); diff != "" {
		t.Errorf("fonts indexes mismatch (-want +got):\n%s", diff)
	}
}
