// Package export writes entry-keyed columns as Arrow IPC streams, the format
// notebooks and dataframe libraries read directly.
//
// A stream holds one record batch. The first field, "entry", lists the entry
// ids present in any column in ascending order; every other field is one
// column, null where that column has no value for the entry.
package export

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"pixlise-client/protos"
)

// EntryField names the key column.
const EntryField = "entry"

// Column is a named ClientMap, such as a quantified element or a metadata
// label.
type Column struct {
	Name   string
	Values *protos.ClientMap
}

func columnType(m *protos.ClientMap) arrow.DataType {
	switch {
	case len(m.IntValues) > 0:
		return arrow.PrimitiveTypes.Int64
	case len(m.StringValues) > 0:
		return arrow.BinaryTypes.String
	default:
		return arrow.PrimitiveTypes.Float64
	}
}

// Schema returns the schema WriteColumns uses for cols.
func Schema(cols []Column) (*arrow.Schema, error) {
	fields := []arrow.Field{{Name: EntryField, Type: arrow.PrimitiveTypes.Int32}}
	seen := map[string]bool{EntryField: true}
	for _, c := range cols {
		if c.Values == nil {
			return nil, fmt.Errorf("column %q has no values", c.Name)
		}
		if c.Name == "" || seen[c.Name] {
			return nil, fmt.Errorf("column name %q is empty or used twice", c.Name)
		}
		seen[c.Name] = true
		fields = append(fields, arrow.Field{Name: c.Name, Type: columnType(c.Values), Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

// Record builds the record batch for cols. The caller must Release it.
func Record(mem memory.Allocator, cols []Column) (arrow.Record, error) {
	schema, err := Schema(cols)
	if err != nil {
		return nil, err
	}

	var entries []int32
	for _, c := range cols {
		entries = append(entries, c.Values.EntryIndexes...)
	}
	slices.Sort(entries)
	entries = slices.Compact(entries)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int32Builder).AppendValues(entries, nil)

	for i, c := range cols {
		switch fb := b.Field(i + 1).(type) {
		case *array.Int64Builder:
			appendColumn[int64](fb, entries, c.Values.Ints())
		case *array.StringBuilder:
			appendColumn[string](fb, entries, c.Values.Strs())
		case *array.Float64Builder:
			appendColumn[float64](fb, entries, c.Values.Floats())
		}
	}
	return b.NewRecord(), nil
}

type builder[T any] interface {
	Append(T)
	AppendNull()
}

func appendColumn[T any](b builder[T], entries []int32, values map[int32]T) {
	for _, e := range entries {
		if v, ok := values[e]; ok {
			b.Append(v)
		} else {
			b.AppendNull()
		}
	}
}

// WriteColumns writes cols to w as one Arrow IPC stream.
func WriteColumns(w io.Writer, cols ...Column) error {
	mem := memory.NewGoAllocator()
	rec, err := Record(mem, cols)
	if err != nil {
		return err
	}
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return fmt.Errorf("write record: %w", err)
	}
	return iw.Close()
}

// ReadColumns reads a stream written by WriteColumns. Null values are left
// out of the returned maps.
func ReadColumns(r io.Reader) ([]Column, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	defer rdr.Release()

	schema := rdr.Schema()
	if schema.NumFields() == 0 || schema.Field(0).Name != EntryField {
		return nil, fmt.Errorf("first field must be %q", EntryField)
	}
	cols := make([]Column, schema.NumFields()-1)
	for i := range cols {
		cols[i] = Column{Name: schema.Field(i + 1).Name, Values: &protos.ClientMap{}}
	}

	for rdr.Next() {
		rec := rdr.Record()
		entries, ok := rec.Column(0).(*array.Int32)
		if !ok {
			return nil, fmt.Errorf("field %q has type %s", EntryField, rec.Column(0).DataType())
		}
		for i := range cols {
			if err := readColumn(cols[i].Values, entries, rec.Column(i+1)); err != nil {
				return nil, fmt.Errorf("column %q: %w", cols[i].Name, err)
			}
		}
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cols, nil
}

func readColumn(m *protos.ClientMap, entries *array.Int32, col arrow.Array) error {
	for row := 0; row < col.Len(); row++ {
		if col.IsNull(row) {
			continue
		}
		switch a := col.(type) {
		case *array.Float64:
			m.FloatValues = append(m.FloatValues, a.Value(row))
		case *array.Int64:
			m.IntValues = append(m.IntValues, a.Value(row))
		case *array.String:
			m.StringValues = append(m.StringValues, a.Value(row))
		default:
			return fmt.Errorf("unsupported type %s", col.DataType())
		}
		m.EntryIndexes = append(m.EntryIndexes, entries.Value(row))
	}
	return nil
}
