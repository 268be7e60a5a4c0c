package protos

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ScanItem describes one scan (dataset).
type ScanItem struct {
	ID               string
	Title            string
	Description      string
	Instrument       string
	InstrumentConfig string
	TimestampUnixSec uint32
	Meta             map[string]string
	ContentCounts    map[string]int32
	CreatorUserID    string
	Tags             []string
}

func (m *ScanItem) marshal(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Title)
	b = appendString(b, 3, m.Description)
	b = appendString(b, 4, m.Instrument)
	b = appendString(b, 5, m.InstrumentConfig)
	b = appendVarint(b, 6, uint64(m.TimestampUnixSec))
	b = appendStringMap(b, 7, m.Meta)
	for _, k := range sortedKeys(m.ContentCounts) {
		var e []byte
		e = appendKey(e, k)
		e = appendInt32(e, 2, m.ContentCounts[k])
		b = appendEntry(b, 8, e)
	}
	b = appendString(b, 9, m.CreatorUserID)
	b = appendStrings(b, 10, m.Tags)
	return b
}

func (m *ScanItem) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ID, err = f.str()
		case 2:
			m.Title, err = f.str()
		case 3:
			m.Description, err = f.str()
		case 4:
			m.Instrument, err = f.str()
		case 5:
			m.InstrumentConfig, err = f.str()
		case 6:
			m.TimestampUnixSec, err = f.uint32()
		case 7:
			err = decodeStringMapEntry(f, &m.Meta)
		case 8:
			var k string
			var v int32
			err = f.entry(
				func(e field) (err error) { k, err = e.str(); return },
				func(e field) (err error) { v, err = e.int32(); return },
			)
			if err == nil {
				if m.ContentCounts == nil {
					m.ContentCounts = make(map[string]int32)
				}
				m.ContentCounts[k] = v
			}
		case 9:
			m.CreatorUserID, err = f.str()
		case 10:
			var s string
			if s, err = f.str(); err == nil {
				m.Tags = append(m.Tags, s)
			}
		}
		return err
	})
}

// ScanListResp is the answer to listScans.
type ScanListResp struct {
	Scans []*ScanItem
}

func (m *ScanListResp) Kind() Kind { return KindScanList }

func (m *ScanListResp) marshal(b []byte) []byte {
	return appendMessages(b, 1, m.Scans)
}

func (m *ScanListResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		s, err := subNew[ScanItem](f)
		if err != nil {
			return err
		}
		m.Scans = append(m.Scans, s)
		return nil
	})
}

// ScanMetaDataType is the value type of a metadata label.
type ScanMetaDataType int32

const (
	MetaFloat  ScanMetaDataType = 0
	MetaInt    ScanMetaDataType = 1
	MetaString ScanMetaDataType = 2
)

// ScanMetaLabelsAndTypesResp lists the metadata labels of a scan. MetaTypes[i]
// is the type of MetaLabels[i].
type ScanMetaLabelsAndTypesResp struct {
	MetaLabels []string
	MetaTypes  []ScanMetaDataType
}

func (m *ScanMetaLabelsAndTypesResp) Kind() Kind { return KindScanMetaLabelsAndTypes }

func (m *ScanMetaLabelsAndTypesResp) marshal(b []byte) []byte {
	b = appendStrings(b, 1, m.MetaLabels)
	return appendPackedVarints(b, 2, len(m.MetaTypes), func(i int) uint64 { return uint64(int64(m.MetaTypes[i])) })
}

func (m *ScanMetaLabelsAndTypesResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			s, err := f.str()
			if err != nil {
				return err
			}
			m.MetaLabels = append(m.MetaLabels, s)
		case 2:
			vs, err := f.appendInt32s(nil)
			if err != nil {
				return err
			}
			for _, v := range vs {
				m.MetaTypes = append(m.MetaTypes, ScanMetaDataType(v))
			}
		}
		return nil
	})
}

// ScanMetaDataItem holds one metadata value. Only the member selected by Type
// is meaningful.
type ScanMetaDataItem struct {
	Type   ScanMetaDataType
	FValue float32
	IValue int32
	SValue string
}

func (m *ScanMetaDataItem) marshal(b []byte) []byte {
	// oneof members are written even when zero so the type survives
	switch m.Type {
	case MetaFloat:
		b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(m.FValue))
	case MetaInt:
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.IValue)))
	case MetaString:
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, m.SValue)
	}
	return b
}

func (m *ScanMetaDataItem) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Type = MetaFloat
			m.FValue, err = f.float32()
		case 2:
			m.Type = MetaInt
			m.IValue, err = f.int32()
		case 3:
			m.Type = MetaString
			m.SValue, err = f.str()
		}
		return err
	})
}

// ScanEntryMetadata maps metadata label index to value for one entry.
type ScanEntryMetadata struct {
	Meta map[int32]*ScanMetaDataItem
}

func (m *ScanEntryMetadata) marshal(b []byte) []byte {
	return appendItemMap(b, 1, m.Meta)
}

func (m *ScanEntryMetadata) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		return decodeItemMapEntry(f, &m.Meta)
	})
}

// ScanEntryMetadataResp holds per-entry metadata, one element per scan entry.
type ScanEntryMetadataResp struct {
	Entries []*ScanEntryMetadata
}

func (m *ScanEntryMetadataResp) Kind() Kind { return KindScanEntryMetadata }

func (m *ScanEntryMetadataResp) marshal(b []byte) []byte {
	return appendMessages(b, 1, m.Entries)
}

func (m *ScanEntryMetadataResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		e, err := subNew[ScanEntryMetadata](f)
		if err != nil {
			return err
		}
		m.Entries = append(m.Entries, e)
		return nil
	})
}

// ScanEntry describes what was recorded at one beam location.
type ScanEntry struct {
	ID                int32
	Timestamp         uint32
	Images            uint32
	Meta              bool
	Location          bool
	PseudoIntensities bool
	NormalSpectra     uint32
	DwellSpectra      uint32
	BulkSpectra       uint32
	MaxSpectra        uint32
}

func (m *ScanEntry) marshal(b []byte) []byte {
	b = appendInt32(b, 1, m.ID)
	b = appendVarint(b, 2, uint64(m.Timestamp))
	b = appendVarint(b, 3, uint64(m.Images))
	b = appendBool(b, 4, m.Meta)
	b = appendBool(b, 5, m.Location)
	b = appendBool(b, 6, m.PseudoIntensities)
	b = appendVarint(b, 7, uint64(m.NormalSpectra))
	b = appendVarint(b, 8, uint64(m.DwellSpectra))
	b = appendVarint(b, 9, uint64(m.BulkSpectra))
	b = appendVarint(b, 10, uint64(m.MaxSpectra))
	return b
}

func (m *ScanEntry) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ID, err = f.int32()
		case 2:
			m.Timestamp, err = f.uint32()
		case 3:
			m.Images, err = f.uint32()
		case 4:
			m.Meta, err = f.bool()
		case 5:
			m.Location, err = f.bool()
		case 6:
			m.PseudoIntensities, err = f.bool()
		case 7:
			m.NormalSpectra, err = f.uint32()
		case 8:
			m.DwellSpectra, err = f.uint32()
		case 9:
			m.BulkSpectra, err = f.uint32()
		case 10:
			m.MaxSpectra, err = f.uint32()
		}
		return err
	})
}

// ScanEntryResp lists the entries of a scan in location order.
type ScanEntryResp struct {
	Entries []*ScanEntry
}

func (m *ScanEntryResp) Kind() Kind { return KindScanEntry }

func (m *ScanEntryResp) marshal(b []byte) []byte {
	return appendMessages(b, 1, m.Entries)
}

func (m *ScanEntryResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		e, err := subNew[ScanEntry](f)
		if err != nil {
			return err
		}
		m.Entries = append(m.Entries, e)
		return nil
	})
}

// IDs returns the entry identifiers in order.
func (m *ScanEntryResp) IDs() []int32 {
	ids := make([]int32, 0, len(m.Entries))
	for _, e := range m.Entries {
		ids = append(ids, e.ID)
	}
	return ids
}

// Coordinate3D is a beam location in instrument space.
type Coordinate3D struct {
	X, Y, Z float32
}

func (m *Coordinate3D) marshal(b []byte) []byte {
	b = appendFloat32(b, 1, m.X)
	b = appendFloat32(b, 2, m.Y)
	b = appendFloat32(b, 3, m.Z)
	return b
}

func (m *Coordinate3D) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.X, err = f.float32()
		case 2:
			m.Y, err = f.float32()
		case 3:
			m.Z, err = f.float32()
		}
		return err
	})
}

// ScanBeamLocationsResp holds one location per scan entry; entries without a
// location have a nil element. A location at the origin encodes the same way
// and also decodes as nil.
type ScanBeamLocationsResp struct {
	BeamLocations []*Coordinate3D
}

func (m *ScanBeamLocationsResp) Kind() Kind { return KindScanBeamLocations }

func (m *ScanBeamLocationsResp) marshal(b []byte) []byte {
	return appendMessages(b, 1, m.BeamLocations)
}

func (m *ScanBeamLocationsResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		if f.typ == protowire.BytesType && len(f.bytes) == 0 {
			m.BeamLocations = append(m.BeamLocations, nil)
			return nil
		}
		c, err := subNew[Coordinate3D](f)
		if err != nil {
			return err
		}
		m.BeamLocations = append(m.BeamLocations, c)
		return nil
	})
}

// ClientStringList is a plain list of names (columns, labels).
type ClientStringList struct {
	Strings []string
}

func (m *ClientStringList) Kind() Kind { return KindStringList }

func (m *ClientStringList) marshal(b []byte) []byte {
	return appendStrings(b, 1, m.Strings)
}

func (m *ClientStringList) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		s, err := f.str()
		if err != nil {
			return err
		}
		m.Strings = append(m.Strings, s)
		return nil
	})
}

// ClientMap is a column of values keyed by scan entry index. Exactly one of the
// value slices is populated and has the same length as EntryIndexes.
type ClientMap struct {
	EntryIndexes []int32
	FloatValues  []float64
	IntValues    []int64
	StringValues []string
}

func (m *ClientMap) Kind() Kind { return KindClientMap }

func (m *ClientMap) marshal(b []byte) []byte {
	b = appendInt32s(b, 1, m.EntryIndexes)
	b = appendFloat64s(b, 2, m.FloatValues)
	b = appendInt64s(b, 3, m.IntValues)
	b = appendStrings(b, 4, m.StringValues)
	return b
}

func (m *ClientMap) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.EntryIndexes, err = f.appendInt32s(m.EntryIndexes)
		case 2:
			m.FloatValues, err = f.appendFloat64s(m.FloatValues)
		case 3:
			m.IntValues, err = f.appendInt64s(m.IntValues)
		case 4:
			var s string
			if s, err = f.str(); err == nil {
				m.StringValues = append(m.StringValues, s)
			}
		}
		return err
	})
}

// Validate checks that at most one value column is set and that it has one
// value per entry index.
func (m *ClientMap) Validate() error {
	columns, n := 0, 0
	for _, l := range []int{len(m.FloatValues), len(m.IntValues), len(m.StringValues)} {
		if l > 0 {
			columns++
			n = l
		}
	}
	if columns > 1 {
		return fmt.Errorf("client map has %d value columns, want 1", columns)
	}
	if n != len(m.EntryIndexes) {
		return fmt.Errorf("client map has %d entry indexes but %d values", len(m.EntryIndexes), n)
	}
	return nil
}

// Floats returns the float column keyed by entry index.
func (m *ClientMap) Floats() map[int32]float64 {
	out := make(map[int32]float64, len(m.FloatValues))
	for i, v := range m.FloatValues {
		if i < len(m.EntryIndexes) {
			out[m.EntryIndexes[i]] = v
		}
	}
	return out
}

// Ints returns the integer column keyed by entry index.
func (m *ClientMap) Ints() map[int32]int64 {
	out := make(map[int32]int64, len(m.IntValues))
	for i, v := range m.IntValues {
		if i < len(m.EntryIndexes) {
			out[m.EntryIndexes[i]] = v
		}
	}
	return out
}

// Strs returns the string column keyed by entry index.
func (m *ClientMap) Strs() map[int32]string {
	out := make(map[int32]string, len(m.StringValues))
	for i, v := range m.StringValues {
		if i < len(m.EntryIndexes) {
			out[m.EntryIndexes[i]] = v
		}
	}
	return out
}

func appendItemMap(b []byte, num protowire.Number, m map[int32]*ScanMetaDataItem) []byte {
	for _, k := range sortedKeys(m) {
		var e []byte
		e = appendInt32(e, 1, k)
		e = appendMessage(e, 2, m[k])
		b = appendEntry(b, num, e)
	}
	return b
}

func decodeItemMapEntry(f field, m *map[int32]*ScanMetaDataItem) error {
	var k int32
	v := &ScanMetaDataItem{}
	err := f.entry(
		func(e field) (err error) { k, err = e.int32(); return },
		func(e field) error { return e.sub(v) },
	)
	if err != nil {
		return err
	}
	if *m == nil {
		*m = make(map[int32]*ScanMetaDataItem)
	}
	(*m)[k] = v
	return nil
}
