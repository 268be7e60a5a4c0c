package protos

import (
	"github.com/goccy/go-json"

	"pixlise-client/indexcompress"
)

// MistROIItem carries the mineral identification fields of a MIST region.
type MistROIItem struct {
	Species             string `json:"species,omitempty"`
	MineralGroupID      string `json:"mineralGroupID,omitempty"`
	IDDepth             int32  `json:"idDepth,omitempty"`
	ClassificationTrail string `json:"classificationTrail,omitempty"`
	Formula             string `json:"formula,omitempty"`
}

func (m *MistROIItem) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Species)
	b = appendString(b, 2, m.MineralGroupID)
	b = appendInt32(b, 3, m.IDDepth)
	b = appendString(b, 4, m.ClassificationTrail)
	b = appendString(b, 5, m.Formula)
	return b
}

func (m *MistROIItem) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Species, err = f.str()
		case 2:
			m.MineralGroupID, err = f.str()
		case 3:
			m.IDDepth, err = f.int32()
		case 4:
			m.ClassificationTrail, err = f.str()
		case 5:
			m.Formula, err = f.str()
		}
		return err
	})
}

// ROIItem is a region of interest: a named set of scan entries and, optionally,
// image pixels. Entry and pixel indexes are stored run-length encoded, see
// package indexcompress.
type ROIItem struct {
	ID                      string       `json:"id,omitempty"`
	ScanID                  string       `json:"scanId"`
	Name                    string       `json:"name"`
	Description             string       `json:"description,omitempty"`
	ScanEntryIndexesEncoded []int32      `json:"scanEntryIndexesEncoded,omitempty"`
	ImageName               string       `json:"imageName,omitempty"`
	PixelIndexesEncoded     []int32      `json:"pixelIndexesEncoded,omitempty"`
	MistROIItem             *MistROIItem `json:"mistROIItem,omitempty"`
	Tags                    []string     `json:"tags,omitempty"`
	ModifiedUnixSec         uint32       `json:"modifiedUnixSec,omitempty"`
	IsMIST                  bool         `json:"isMIST,omitempty"`
}

func (m *ROIItem) Kind() Kind { return KindROIItem }

func (m *ROIItem) marshal(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.ScanID)
	b = appendString(b, 3, m.Name)
	b = appendString(b, 4, m.Description)
	b = appendInt32s(b, 5, m.ScanEntryIndexesEncoded)
	b = appendString(b, 6, m.ImageName)
	b = appendInt32s(b, 7, m.PixelIndexesEncoded)
	b = appendMessage(b, 8, m.MistROIItem)
	b = appendStrings(b, 9, m.Tags)
	b = appendVarint(b, 10, uint64(m.ModifiedUnixSec))
	b = appendBool(b, 11, m.IsMIST)
	return b
}

func (m *ROIItem) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ID, err = f.str()
		case 2:
			m.ScanID, err = f.str()
		case 3:
			m.Name, err = f.str()
		case 4:
			m.Description, err = f.str()
		case 5:
			m.ScanEntryIndexesEncoded, err = f.appendInt32s(m.ScanEntryIndexesEncoded)
		case 6:
			m.ImageName, err = f.str()
		case 7:
			m.PixelIndexesEncoded, err = f.appendInt32s(m.PixelIndexesEncoded)
		case 8:
			m.MistROIItem, err = subNew[MistROIItem](f)
		case 9:
			var s string
			if s, err = f.str(); err == nil {
				m.Tags = append(m.Tags, s)
			}
		case 10:
			m.ModifiedUnixSec, err = f.uint32()
		case 11:
			m.IsMIST, err = f.bool()
		}
		return err
	})
}

// EntryIndexes expands ScanEntryIndexesEncoded.
func (m *ROIItem) EntryIndexes() ([]int32, error) {
	return indexcompress.Decode(m.ScanEntryIndexesEncoded, -1)
}

// SetEntryIndexes stores indexes in encoded form.
func (m *ROIItem) SetEntryIndexes(indexes []int32) error {
	enc, err := indexcompress.Encode(indexes)
	if err != nil {
		return err
	}
	m.ScanEntryIndexesEncoded = enc
	return nil
}

// MarshalROIJSON renders an ROI the way ROI files on disk store it.
func MarshalROIJSON(roi *ROIItem) ([]byte, error) {
	return json.MarshalIndent(roi, "", "  ")
}

// UnmarshalROIJSON reads an ROI written by MarshalROIJSON.
func UnmarshalROIJSON(b []byte) (*ROIItem, error) {
	roi := &ROIItem{}
	if err := json.Unmarshal(b, roi); err != nil {
		return nil, err
	}
	return roi, nil
}

// ROIItemSummary is the listing form of an ROI.
type ROIItemSummary struct {
	ID              string
	ScanID          string
	Name            string
	Description     string
	ImageName       string
	Tags            []string
	ModifiedUnixSec uint32
	MistROIItem     *MistROIItem
	IsMIST          bool
}

func (m *ROIItemSummary) marshal(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.ScanID)
	b = appendString(b, 3, m.Name)
	b = appendString(b, 4, m.Description)
	b = appendString(b, 5, m.ImageName)
	b = appendStrings(b, 6, m.Tags)
	b = appendVarint(b, 7, uint64(m.ModifiedUnixSec))
	b = appendMessage(b, 8, m.MistROIItem)
	b = appendBool(b, 9, m.IsMIST)
	return b
}

func (m *ROIItemSummary) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ID, err = f.str()
		case 2:
			m.ScanID, err = f.str()
		case 3:
			m.Name, err = f.str()
		case 4:
			m.Description, err = f.str()
		case 5:
			m.ImageName, err = f.str()
		case 6:
			var s string
			if s, err = f.str(); err == nil {
				m.Tags = append(m.Tags, s)
			}
		case 7:
			m.ModifiedUnixSec, err = f.uint32()
		case 8:
			m.MistROIItem, err = subNew[MistROIItem](f)
		case 9:
			m.IsMIST, err = f.bool()
		}
		return err
	})
}

// Summary returns the listing form of m.
func (m *ROIItem) Summary() *ROIItemSummary {
	return &ROIItemSummary{
		ID:              m.ID,
		ScanID:          m.ScanID,
		Name:            m.Name,
		Description:     m.Description,
		ImageName:       m.ImageName,
		Tags:            append([]string(nil), m.Tags...),
		ModifiedUnixSec: m.ModifiedUnixSec,
		MistROIItem:     m.MistROIItem,
		IsMIST:          m.IsMIST,
	}
}

// RegionOfInterestListResp maps ROI id to its summary.
type RegionOfInterestListResp struct {
	RegionsOfInterest map[string]*ROIItemSummary
}

func (m *RegionOfInterestListResp) Kind() Kind { return KindROIList }

func (m *RegionOfInterestListResp) marshal(b []byte) []byte {
	for _, k := range sortedKeys(m.RegionsOfInterest) {
		var e []byte
		e = appendKey(e, k)
		e = appendMessage(e, 2, m.RegionsOfInterest[k])
		b = appendEntry(b, 1, e)
	}
	return b
}

func (m *RegionOfInterestListResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var k string
		v := &ROIItemSummary{}
		err := f.entry(
			func(e field) (err error) { k, err = e.str(); return },
			func(e field) error { return e.sub(v) },
		)
		if err != nil {
			return err
		}
		if m.RegionsOfInterest == nil {
			m.RegionsOfInterest = make(map[string]*ROIItemSummary)
		}
		m.RegionsOfInterest[k] = v
		return nil
	})
}

// RegionOfInterestGetResp is the answer to getROI.
type RegionOfInterestGetResp struct {
	RegionOfInterest *ROIItem
}

func (m *RegionOfInterestGetResp) Kind() Kind { return KindROIGet }

func (m *RegionOfInterestGetResp) marshal(b []byte) []byte {
	return appendMessage(b, 1, m.RegionOfInterest)
}

func (m *RegionOfInterestGetResp) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		if f.num == 1 {
			m.RegionOfInterest, err = subNew[ROIItem](f)
		}
		return err
	})
}

// RegionOfInterestWriteResp echoes the stored ROI, including its new id.
type RegionOfInterestWriteResp struct {
	RegionOfInterest *ROIItem
}

func (m *RegionOfInterestWriteResp) Kind() Kind { return KindROIWrite }

func (m *RegionOfInterestWriteResp) marshal(b []byte) []byte {
	return appendMessage(b, 1, m.RegionOfInterest)
}

func (m *RegionOfInterestWriteResp) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		if f.num == 1 {
			m.RegionOfInterest, err = subNew[ROIItem](f)
		}
		return err
	})
}
