package protos

// ScanImageSource is where an image came from.
type ScanImageSource int32

const (
	ImageSourceUnknown    ScanImageSource = 0
	ImageSourceInstrument ScanImageSource = 1
	ImageSourceUpload     ScanImageSource = 2
)

// ScanImagePurpose is what an image is used for.
type ScanImagePurpose int32

const (
	ImagePurposeUnknown ScanImagePurpose = 0
	ImagePurposeContext ScanImagePurpose = 1
	ImagePurposeRGBU    ScanImagePurpose = 2
)

// ScanImage describes one context image.
type ScanImage struct {
	ImagePath         string
	Source            ScanImageSource
	Width             uint32
	Height            uint32
	FileSize          uint32
	Purpose           ScanImagePurpose
	AssociatedScanIDs []string
	OriginScanID      string
	OriginImageURL    string
}

func (m *ScanImage) marshal(b []byte) []byte {
	b = appendString(b, 1, m.ImagePath)
	b = appendInt32(b, 2, int32(m.Source))
	b = appendVarint(b, 3, uint64(m.Width))
	b = appendVarint(b, 4, uint64(m.Height))
	b = appendVarint(b, 5, uint64(m.FileSize))
	b = appendInt32(b, 6, int32(m.Purpose))
	b = appendStrings(b, 7, m.AssociatedScanIDs)
	b = appendString(b, 8, m.OriginScanID)
	b = appendString(b, 9, m.OriginImageURL)
	return b
}

func (m *ScanImage) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		var v int32
		switch f.num {
		case 1:
			m.ImagePath, err = f.str()
		case 2:
			v, err = f.int32()
			m.Source = ScanImageSource(v)
		case 3:
			m.Width, err = f.uint32()
		case 4:
			m.Height, err = f.uint32()
		case 5:
			m.FileSize, err = f.uint32()
		case 6:
			v, err = f.int32()
			m.Purpose = ScanImagePurpose(v)
		case 7:
			var s string
			if s, err = f.str(); err == nil {
				m.AssociatedScanIDs = append(m.AssociatedScanIDs, s)
			}
		case 8:
			m.OriginScanID, err = f.str()
		case 9:
			m.OriginImageURL, err = f.str()
		}
		return err
	})
}

// ImageListResp is the answer to listScanImages.
type ImageListResp struct {
	Images []*ScanImage
}

func (m *ImageListResp) Kind() Kind { return KindImageList }

func (m *ImageListResp) marshal(b []byte) []byte {
	return appendMessages(b, 1, m.Images)
}

func (m *ImageListResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		img, err := subNew[ScanImage](f)
		if err != nil {
			return err
		}
		m.Images = append(m.Images, img)
		return nil
	})
}

// Coordinate2D is a pixel position on an image.
type Coordinate2D struct {
	I, J float32
}

func (m *Coordinate2D) marshal(b []byte) []byte {
	b = appendFloat32(b, 1, m.I)
	b = appendFloat32(b, 2, m.J)
	return b
}

func (m *Coordinate2D) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.I, err = f.float32()
		case 2:
			m.J, err = f.float32()
		}
		return err
	})
}

// ImageLocationsForScan holds the beam positions of one scan on an image.
type ImageLocationsForScan struct {
	ScanID      string
	BeamVersion uint32
	Instrument  string
	Locations   []*Coordinate2D
}

func (m *ImageLocationsForScan) marshal(b []byte) []byte {
	b = appendString(b, 1, m.ScanID)
	b = appendVarint(b, 2, uint64(m.BeamVersion))
	b = appendString(b, 3, m.Instrument)
	b = appendMessages(b, 4, m.Locations)
	return b
}

func (m *ImageLocationsForScan) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ScanID, err = f.str()
		case 2:
			m.BeamVersion, err = f.uint32()
		case 3:
			m.Instrument, err = f.str()
		case 4:
			var c *Coordinate2D
			if c, err = subNew[Coordinate2D](f); err == nil {
				m.Locations = append(m.Locations, c)
			}
		}
		return err
	})
}

// ImageLocations holds every scan's beam positions on one image.
type ImageLocations struct {
	ImageName       string
	LocationPerScan []*ImageLocationsForScan
}

func (m *ImageLocations) marshal(b []byte) []byte {
	b = appendString(b, 1, m.ImageName)
	b = appendMessages(b, 2, m.LocationPerScan)
	return b
}

func (m *ImageLocations) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ImageName, err = f.str()
		case 2:
			var l *ImageLocationsForScan
			if l, err = subNew[ImageLocationsForScan](f); err == nil {
				m.LocationPerScan = append(m.LocationPerScan, l)
			}
		}
		return err
	})
}

// ImageBeamLocationsResp is the answer to getScanImageBeamLocations.
type ImageBeamLocationsResp struct {
	Locations *ImageLocations
}

func (m *ImageBeamLocationsResp) Kind() Kind { return KindImageBeamLocations }

func (m *ImageBeamLocationsResp) marshal(b []byte) []byte {
	return appendMessage(b, 1, m.Locations)
}

func (m *ImageBeamLocationsResp) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		if f.num == 1 {
			m.Locations, err = subNew[ImageLocations](f)
		}
		return err
	})
}

// AvailableVersions lists the beam location versions of one scan.
type AvailableVersions struct {
	Versions []uint32
}

func (m *AvailableVersions) marshal(b []byte) []byte {
	return appendUint32s(b, 1, m.Versions)
}

func (m *AvailableVersions) unmarshal(b []byte) error {
	return walk(b, func(f field) (err error) {
		if f.num == 1 {
			m.Versions, err = f.appendUint32s(m.Versions)
		}
		return err
	})
}

// Latest returns the highest version, or false if there is none.
func (m *AvailableVersions) Latest() (uint32, bool) {
	if len(m.Versions) == 0 {
		return 0, false
	}
	latest := m.Versions[0]
	for _, v := range m.Versions[1:] {
		if v > latest {
			latest = v
		}
	}
	return latest, true
}

// ImageBeamLocationVersionsResp maps scan id to its available beam versions.
type ImageBeamLocationVersionsResp struct {
	BeamVersionPerScan map[string]*AvailableVersions
}

func (m *ImageBeamLocationVersionsResp) Kind() Kind { return KindImageBeamLocationVersions }

func (m *ImageBeamLocationVersionsResp) marshal(b []byte) []byte {
	for _, k := range sortedKeys(m.BeamVersionPerScan) {
		var e []byte
		e = appendKey(e, k)
		e = appendMessage(e, 2, m.BeamVersionPerScan[k])
		b = appendEntry(b, 1, e)
	}
	return b
}

func (m *ImageBeamLocationVersionsResp) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var k string
		v := &AvailableVersions{}
		err := f.entry(
			func(e field) (err error) { k, err = e.str(); return },
			func(e field) error { return e.sub(v) },
		)
		if err != nil {
			return err
		}
		if m.BeamVersionPerScan == nil {
			m.BeamVersionPerScan = make(map[string]*AvailableVersions)
		}
		m.BeamVersionPerScan[k] = v
		return nil
	})
}
