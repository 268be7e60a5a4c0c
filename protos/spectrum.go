package protos

// SpectrumType tells how a spectrum was acquired or derived.
type SpectrumType int32

const (
	SpectrumUnknown SpectrumType = 0
	SpectrumNormal  SpectrumType = 1
	SpectrumDwell   SpectrumType = 2
	SpectrumMax     SpectrumType = 3
	SpectrumBulk    SpectrumType = 4
)

func (t SpectrumType) String() string {
	switch t {
	case SpectrumNormal:
		return "normal"
	case SpectrumDwell:
		return "dwell"
	case SpectrumMax:
		return "max"
	case SpectrumBulk:
		return "bulk"
	}
	return "unknown"
}

// Spectrum is one detector's channel counts.
type Spectrum struct {
	Detector string
	Type     SpectrumType
	Counts   []uint32
	MaxCount uint32
	Meta     map[int32]*ScanMetaDataItem
}

func (m *Spectrum) marshal(b []byte) []byte {
	b = appendString(b, 1, m.Detector)
	b = appendInt32(b, 2, int32(m.Type))
	b = appendUint32s(b, 3, m.Counts)
	b = appendVarint(b, 4, uint64(m.MaxCount))
	b = appendItemMap(b, 5, m.Meta)
	return b
}

func (m *Spectrum) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Detector, err = f.str()
		case 2:
			var v int32
			v, err = f.int32()
			m.Type = SpectrumType(v)
		case 3:
			m.Counts, err = f.appendUint32s(m.Counts)
		case 4:
			m.MaxCount, err = f.uint32()
		case 5:
			err = decodeItemMapEntry(f, &m.Meta)
		}
		return err
	})
}

// Spectra groups the spectra recorded at one location.
type Spectra struct {
	Spectra []*Spectrum
}

func (m *Spectra) marshal(b []byte) []byte {
	return appendMessages(b, 1, m.Spectra)
}

func (m *Spectra) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		s, err := subNew[Spectrum](f)
		if err != nil {
			return err
		}
		m.Spectra = append(m.Spectra, s)
		return nil
	})
}

// SpectrumResp holds all spectra of a scan.
type SpectrumResp struct {
	BulkSpectra          []*Spectrum
	MaxSpectra           []*Spectrum
	SpectraPerLocation   []*Spectra
	ChannelCount         uint32
	NormalSpectraForScan uint32
	DwellSpectraForScan  uint32
	LiveTimeMetaIndex    uint32
}

func (m *SpectrumResp) Kind() Kind { return KindSpectrum }

func (m *SpectrumResp) marshal(b []byte) []byte {
	b = appendMessages(b, 1, m.BulkSpectra)
	b = appendMessages(b, 2, m.MaxSpectra)
	b = appendMessages(b, 3, m.SpectraPerLocation)
	b = appendVarint(b, 4, uint64(m.ChannelCount))
	b = appendVarint(b, 5, uint64(m.NormalSpectraForScan))
	b = appendVarint(b, 6, uint64(m.DwellSpectraForScan))
	b = appendVarint(b, 7, uint64(m.LiveTimeMetaIndex))
	return b
}

func (m *SpectrumResp) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			var s *Spectrum
			if s, err = subNew[Spectrum](f); err == nil {
				m.BulkSpectra = append(m.BulkSpectra, s)
			}
		case 2:
			var s *Spectrum
			if s, err = subNew[Spectrum](f); err == nil {
				m.MaxSpectra = append(m.MaxSpectra, s)
			}
		case 3:
			var s *Spectra
			if s, err = subNew[Spectra](f); err == nil {
				m.SpectraPerLocation = append(m.SpectraPerLocation, s)
			}
		case 4:
			m.ChannelCount, err = f.uint32()
		case 5:
			m.NormalSpectraForScan, err = f.uint32()
		case 6:
			m.DwellSpectraForScan, err = f.uint32()
		case 7:
			m.LiveTimeMetaIndex, err = f.uint32()
		}
		return err
	})
}

// DetectedDiffractionPeak is one diffraction peak found in a spectrum.
type DetectedDiffractionPeak struct {
	PeakChannel       int32
	EffectSize        float32
	BaselineVariation float32
	GlobalDifference  float32
	DifferenceSigma   float32
	PeakHeight        float32
	Detector          string
}

func (m *DetectedDiffractionPeak) marshal(b []byte) []byte {
	b = appendInt32(b, 1, m.PeakChannel)
	b = appendFloat32(b, 2, m.EffectSize)
	b = appendFloat32(b, 3, m.BaselineVariation)
	b = appendFloat32(b, 4, m.GlobalDifference)
	b = appendFloat32(b, 5, m.DifferenceSigma)
	b = appendFloat32(b, 6, m.PeakHeight)
	b = appendString(b, 7, m.Detector)
	return b
}

func (m *DetectedDiffractionPeak) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.PeakChannel, err = f.int32()
		case 2:
			m.EffectSize, err = f.float32()
		case 3:
			m.BaselineVariation, err = f.float32()
		case 4:
			m.GlobalDifference, err = f.float32()
		case 5:
			m.DifferenceSigma, err = f.float32()
		case 6:
			m.PeakHeight, err = f.float32()
		case 7:
			m.Detector, err = f.str()
		}
		return err
	})
}

// DetectedDiffractionPerLocation holds the peaks of one scan entry. ID is the
// entry identifier as a string.
type DetectedDiffractionPerLocation struct {
	ID    string
	Peaks []*DetectedDiffractionPeak
}

func (m *DetectedDiffractionPerLocation) marshal(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendMessages(b, 2, m.Peaks)
	return b
}

func (m *DetectedDiffractionPerLocation) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ID, err = f.str()
		case 2:
			var p *DetectedDiffractionPeak
			if p, err = subNew[DetectedDiffractionPeak](f); err == nil {
				m.Peaks = append(m.Peaks, p)
			}
		}
		return err
	})
}

// DetectedDiffractionPeaksResp lists diffraction peaks per location.
type DetectedDiffractionPeaksResp struct {
	PeaksPerLocation []*DetectedDiffractionPerLocation
}

func (m *DetectedDiffractionPeaksResp) Kind() Kind { return KindDetectedDiffractionPeaks }

func (m *DetectedDiffractionPeaksResp) marshal(b []byte) []byte {
	return appendMessages(b, 1, m.PeaksPerLocation)
}

func (m *DetectedDiffractionPeaksResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		p, err := subNew[DetectedDiffractionPerLocation](f)
		if err != nil {
			return err
		}
		m.PeaksPerLocation = append(m.PeaksPerLocation, p)
		return nil
	})
}
