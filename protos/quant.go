package protos

// QuantificationSummary describes a quantification without its data.
type QuantificationSummary struct {
	ID               string
	ScanID           string
	Name             string
	Elements         []string
	Detectors        []string
	Status           string
	CreatorUserID    string
	CompletedUnixSec uint32
}

func (m *QuantificationSummary) marshal(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.ScanID)
	b = appendString(b, 3, m.Name)
	b = appendStrings(b, 4, m.Elements)
	b = appendStrings(b, 5, m.Detectors)
	b = appendString(b, 6, m.Status)
	b = appendString(b, 7, m.CreatorUserID)
	b = appendVarint(b, 8, uint64(m.CompletedUnixSec))
	return b
}

func (m *QuantificationSummary) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		var s string
		switch f.num {
		case 1:
			m.ID, err = f.str()
		case 2:
			m.ScanID, err = f.str()
		case 3:
			m.Name, err = f.str()
		case 4:
			if s, err = f.str(); err == nil {
				m.Elements = append(m.Elements, s)
			}
		case 5:
			if s, err = f.str(); err == nil {
				m.Detectors = append(m.Detectors, s)
			}
		case 6:
			m.Status, err = f.str()
		case 7:
			m.CreatorUserID, err = f.str()
		case 8:
			m.CompletedUnixSec, err = f.uint32()
		}
		return err
	})
}

// QuantDataType is the value type of a quantification column.
type QuantDataType int32

const (
	QuantFloat QuantDataType = 0
	QuantInt   QuantDataType = 1
)

// QuantLocationValue is one column value; which member applies depends on the
// column's QuantDataType.
type QuantLocationValue struct {
	FValue float32
	IValue int32
}

func (m *QuantLocationValue) marshal(b []byte) []byte {
	b = appendFloat32(b, 1, m.FValue)
	b = appendInt32(b, 2, m.IValue)
	return b
}

func (m *QuantLocationValue) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.FValue, err = f.float32()
		case 2:
			m.IValue, err = f.int32()
		}
		return err
	})
}

// QuantLocation holds every column value quantified at one scan entry.
type QuantLocation struct {
	PMC      int32
	RTT      int32
	SClk     int32
	Filename string
	Values   []*QuantLocationValue
}

func (m *QuantLocation) marshal(b []byte) []byte {
	b = appendInt32(b, 1, m.PMC)
	b = appendInt32(b, 2, m.RTT)
	b = appendInt32(b, 3, m.SClk)
	b = appendString(b, 4, m.Filename)
	b = appendMessages(b, 5, m.Values)
	return b
}

func (m *QuantLocation) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.PMC, err = f.int32()
		case 2:
			m.RTT, err = f.int32()
		case 3:
			m.SClk, err = f.int32()
		case 4:
			m.Filename, err = f.str()
		case 5:
			var v *QuantLocationValue
			if v, err = subNew[QuantLocationValue](f); err == nil {
				m.Values = append(m.Values, v)
			}
		}
		return err
	})
}

// QuantLocationSet is the data of one detector.
type QuantLocationSet struct {
	Detector  string
	Locations []*QuantLocation
}

func (m *QuantLocationSet) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Detector)
	b = appendMessages(b, 2, m.Locations)
	return b
}

func (m *QuantLocationSet) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Detector, err = f.str()
		case 2:
			var l *QuantLocation
			if l, err = subNew[QuantLocation](f); err == nil {
				m.Locations = append(m.Locations, l)
			}
		}
		return err
	})
}

// Quantification is the full table: Labels[i] has type Types[i] and is found at
// Values[i] of every location.
type Quantification struct {
	Labels      []string
	Types       []QuantDataType
	LocationSet []*QuantLocationSet
}

func (m *Quantification) marshal(b []byte) []byte {
	b = appendStrings(b, 1, m.Labels)
	b = appendPackedVarints(b, 2, len(m.Types), func(i int) uint64 { return uint64(int64(m.Types[i])) })
	b = appendMessages(b, 3, m.LocationSet)
	return b
}

func (m *Quantification) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			var s string
			if s, err = f.str(); err == nil {
				m.Labels = append(m.Labels, s)
			}
		case 2:
			var vs []int32
			if vs, err = f.appendInt32s(nil); err == nil {
				for _, v := range vs {
					m.Types = append(m.Types, QuantDataType(v))
				}
			}
		case 3:
			var s *QuantLocationSet
			if s, err = subNew[QuantLocationSet](f); err == nil {
				m.LocationSet = append(m.LocationSet, s)
			}
		}
		return err
	})
}

// Column returns the index of label, or -1.
func (m *Quantification) Column(label string) int {
	for i, l := range m.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Detector returns the location set of the named detector, or nil.
func (m *Quantification) Detector(name string) *QuantLocationSet {
	for _, s := range m.LocationSet {
		if s.Detector == name {
			return s
		}
	}
	return nil
}

// QuantListResp lists the quantifications visible to the caller.
type QuantListResp struct {
	Quants []*QuantificationSummary
}

func (m *QuantListResp) Kind() Kind { return KindQuantList }

func (m *QuantListResp) marshal(b []byte) []byte {
	return appendMessages(b, 1, m.Quants)
}

func (m *QuantListResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		q, err := subNew[QuantificationSummary](f)
		if err != nil {
			return err
		}
		m.Quants = append(m.Quants, q)
		return nil
	})
}

// QuantGetResp carries a quantification. Data is nil when only the summary was
// requested.
type QuantGetResp struct {
	Summary *QuantificationSummary
	Data    *Quantification
}

func (m *QuantGetResp) Kind() Kind { return KindQuantGet }

func (m *QuantGetResp) marshal(b []byte) []byte {
	b = appendMessage(b, 1, m.Summary)
	b = appendMessage(b, 2, m.Data)
	return b
}

func (m *QuantGetResp) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Summary, err = subNew[QuantificationSummary](f)
		case 2:
			m.Data, err = subNew[Quantification](f)
		}
		return err
	})
}
