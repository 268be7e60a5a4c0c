package export

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/go-cmp/cmp"

	"pixlise-client/protos"
)

func sampleColumns() []Column {
	return []Column{
		{Name: "Na2O_%", Values: &protos.ClientMap{EntryIndexes: []int32{97, 98, 99}, FloatValues: []float64{2.5, 2.625, 2.75}}},
		{Name: "total_counts", Values: &protos.ClientMap{EntryIndexes: []int32{98, 97}, IntValues: []int64{151000, 150000}}},
		{Name: "TARGET_ID", Values: &protos.ClientMap{EntryIndexes: []int32{97, 100}, StringValues: []string{"T00", "T01"}}},
	}
}

func TestRecordLayout(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec, err := Record(mem, sampleColumns())
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Release()

	if rec.NumRows() != 4 {
		t.Fatalf("expect 4 entries, got %d", rec.NumRows())
	}
	wantTypes := []arrow.DataType{
		arrow.PrimitiveTypes.Int32, arrow.PrimitiveTypes.Float64, arrow.PrimitiveTypes.Int64, arrow.BinaryTypes.String,
	}
	for i, f := range rec.Schema().Fields() {
		if !arrow.TypeEqual(f.Type, wantTypes[i]) {
			t.Errorf("field %s: expect %s, got %s", f.Name, wantTypes[i], f.Type)
		}
	}
	// entry 100 only has a target
	if n := rec.Column(1).NullN(); n != 1 {
		t.Fatalf("expect one null in Na2O_%%, got %d", n)
	}
	if n := rec.Column(3).NullN(); n != 2 {
		t.Fatalf("expect two nulls in TARGET_ID, got %d", n)
	}
}

func TestWriteReadColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteColumns(&buf, sampleColumns()...); err != nil {
		t.Fatal(err)
	}
	got, err := ReadColumns(&buf)
	if err != nil {
		t.Fatal(err)
	}

	// read back in entry order
	want := []Column{
		{Name: "Na2O_%", Values: &protos.ClientMap{EntryIndexes: []int32{97, 98, 99}, FloatValues: []float64{2.5, 2.625, 2.75}}},
		{Name: "total_counts", Values: &protos.ClientMap{EntryIndexes: []int32{97, 98}, IntValues: []int64{150000, 151000}}},
		{Name: "TARGET_ID", Values: &protos.ClientMap{EntryIndexes: []int32{97, 100}, StringValues: []string{"T00", "T01"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestSchemaRejects(t *testing.T) {
	m := &protos.ClientMap{}
	for name, cols := range map[string][]Column{
		"duplicate": {{Name: "a", Values: m}, {Name: "a", Values: m}},
		"reserved":  {{Name: EntryField, Values: m}},
		"unnamed":   {{Values: m}},
		"nil map":   {{Name: "a"}},
	} {
		if _, err := Schema(cols); err == nil {
			t.Errorf("%s: expect error", name)
		}
	}
}

func TestEmptyColumnIsFloat(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteColumns(&buf, Column{Name: "empty", Values: &protos.ClientMap{}}); err != nil {
		t.Fatal(err)
	}
	got, err := ReadColumns(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "empty" || len(got[0].Values.EntryIndexes) != 0 {
		t.Fatalf("unexpected %+v", got)
	}
}
