package mock

import (
	"fmt"

	"pixlise-client/protos"
)

// Identifiers of the seeded dataset.
const (
	ScanNaltsos = "048300551"
	ScanDourbes = "983561"

	QuantNaltsos = "quant-umwzkcv6cmy06e36"
	QuantDourbes = "quant-983561-pmf"

	ImageNaltsos = "048300551/PCW_0125_0678031992_000RCM_N00417120483005510091075J02.png"
	ImageDourbes = "983561/PCW_0320_0695183312_000RCM_N0102000983561000037000J01.png"
	ImageShared  = "uploads/combined-context.png"

	ROINaltsos = "roi-bright-spots"
	ROIMist    = "mist-olivine"
)

const channelCount = 16

// Energy calibration stored on the bulk spectra, in eV.
var bulkCalibration = map[string][2]float32{
	"A": {-20, 7.9},
	"B": {-18.5, 7.88},
}

// scanData is everything the engine knows about one scan.
type scanData struct {
	item      *protos.ScanItem
	entries   *protos.ScanEntryResp
	labels    *protos.ScanMetaLabelsAndTypesResp
	entryMeta *protos.ScanEntryMetadataResp
	spectra   *protos.SpectrumResp
	beams     *protos.ScanBeamLocationsResp
	peaks     *protos.DetectedDiffractionPeaksResp
}

// Dataset is the engine's content. Seed returns a fresh copy each time.
type Dataset struct {
	scans      []*scanData
	quants     []*protos.QuantGetResp
	images     []*protos.ScanImage
	imageBeams map[string]*protos.ImageLocations
	rois       map[string]*protos.ROIItem
	maps       map[string]*protos.ClientMap
}

// Seed builds the sample dataset: two scans, a quantification of each, three
// context images with beam locations and two ROIs.
func Seed() *Dataset {
	d := &Dataset{
		imageBeams: map[string]*protos.ImageLocations{},
		rois:       map[string]*protos.ROIItem{},
		maps:       map[string]*protos.ClientMap{},
	}

	naltsos := newScan(&protos.ScanItem{
		ID:               ScanNaltsos,
		Title:            "Naltsos",
		Description:      "Sol 125 abrasion patch",
		Instrument:       "PIXL_FM",
		InstrumentConfig: "PIXL",
		TimestampUnixSec: 1646262426,
		Meta:             map[string]string{"Sol": "0125", "DriveID": "1712", "Target": "Naltsos"},
		CreatorUserID:    "PIXLISEImport",
		Tags:             []string{"abrasion"},
	}, 97, 8)
	dourbes := newScan(&protos.ScanItem{
		ID:               ScanDourbes,
		Title:            "Dourbes",
		Description:      "Sol 257 abrasion patch",
		Instrument:       "PIXL_FM",
		InstrumentConfig: "PIXL",
		TimestampUnixSec: 1658062346,
		Meta:             map[string]string{"Sol": "0257", "DriveID": "3074", "Target": "Dourbes"},
		CreatorUserID:    "PIXLISEImport",
	}, 1, 5)
	d.scans = []*scanData{naltsos, dourbes}

	d.quants = []*protos.QuantGetResp{
		newQuant(QuantNaltsos, naltsos, "Naltsos PMF", []string{"A", "B", "Combined"}),
		newQuant(QuantDourbes, dourbes, "Dourbes PMF", []string{"Combined"}),
	}

	d.images = []*protos.ScanImage{
		{ImagePath: ImageNaltsos, Source: protos.ImageSourceInstrument, Width: 752, Height: 580, FileSize: 1311744,
			Purpose: protos.ImagePurposeContext, AssociatedScanIDs: []string{ScanNaltsos}, OriginScanID: ScanNaltsos},
		{ImagePath: ImageDourbes, Source: protos.ImageSourceInstrument, Width: 752, Height: 580, FileSize: 1290240,
			Purpose: protos.ImagePurposeContext, AssociatedScanIDs: []string{ScanDourbes}, OriginScanID: ScanDourbes},
		{ImagePath: ImageShared, Source: protos.ImageSourceUpload, Width: 1024, Height: 1024, FileSize: 3145728,
			Purpose: protos.ImagePurposeContext, AssociatedScanIDs: []string{ScanNaltsos, ScanDourbes},
			OriginImageURL: "https://example.org/combined-context.png"},
	}

	d.imageBeams[ImageNaltsos] = &protos.ImageLocations{
		ImageName: ImageNaltsos,
		LocationPerScan: []*protos.ImageLocationsForScan{
			imageLocations(naltsos, 1, 0),
			imageLocations(naltsos, 2, 0.5),
		},
	}
	d.imageBeams[ImageDourbes] = &protos.ImageLocations{
		ImageName:       ImageDourbes,
		LocationPerScan: []*protos.ImageLocationsForScan{imageLocations(dourbes, 1, 0)},
	}
	d.imageBeams[ImageShared] = &protos.ImageLocations{
		ImageName: ImageShared,
		LocationPerScan: []*protos.ImageLocationsForScan{
			imageLocations(naltsos, 3, 1),
			imageLocations(dourbes, 1, 2),
		},
	}

	bright := &protos.ROIItem{
		ID:              ROINaltsos,
		ScanID:          ScanNaltsos,
		Name:            "Bright spots",
		Description:     "High Na entries",
		Tags:            []string{"sodium"},
		ModifiedUnixSec: 1668142579,
	}
	bright.SetEntryIndexes([]int32{0, 1, 2, 6})
	mist := &protos.ROIItem{
		ID:          ROIMist,
		ScanID:      ScanNaltsos,
		Name:        "Olivine",
		Description: "MIST mineral identification",
		MistROIItem: &protos.MistROIItem{
			Species:             "Forsterite",
			MineralGroupID:      "Olivine",
			IDDepth:             3,
			ClassificationTrail: "Silicate.Nesosilicate.Olivine",
			Formula:             "Mg2SiO4",
		},
		ModifiedUnixSec: 1668142600,
		IsMIST:          true,
	}
	mist.SetEntryIndexes([]int32{3, 4, 5})
	d.rois[bright.ID] = bright
	d.rois[mist.ID] = mist
	return d
}

// newScan fills a scan with n entries numbered from firstPMC.
func newScan(item *protos.ScanItem, firstPMC int32, n int) *scanData {
	s := &scanData{
		item:      item,
		entries:   &protos.ScanEntryResp{},
		labels:    &protos.ScanMetaLabelsAndTypesResp{},
		entryMeta: &protos.ScanEntryMetadataResp{},
		spectra:   &protos.SpectrumResp{ChannelCount: channelCount, NormalSpectraForScan: uint32(2 * n)},
		beams:     &protos.ScanBeamLocationsResp{},
		peaks:     &protos.DetectedDiffractionPeaksResp{},
	}
	// OFFSET and XPERCHAN only appear on the bulk spectra
	s.labels.MetaLabels = []string{"DRIFT_X", "LIVETIME", "PMC", "SCLK", "TARGET_ID", "OFFSET", "XPERCHAN"}
	s.labels.MetaTypes = []protos.ScanMetaDataType{
		protos.MetaFloat, protos.MetaFloat, protos.MetaInt, protos.MetaInt, protos.MetaString, protos.MetaFloat, protos.MetaFloat,
	}

	bulk := map[string]*protos.Spectrum{}
	for i := 0; i < n; i++ {
		pmc := firstPMC + int32(i)
		s.entries.Entries = append(s.entries.Entries, &protos.ScanEntry{
			ID:                pmc,
			Timestamp:         item.TimestampUnixSec + uint32(10*i),
			Meta:              true,
			Location:          true,
			PseudoIntensities: true,
			NormalSpectra:     2,
		})

		meta := map[int32]*protos.ScanMetaDataItem{
			0: {Type: protos.MetaFloat, FValue: 0.01 * float32(i)},
			1: {Type: protos.MetaFloat, FValue: 9.5},
			2: {Type: protos.MetaInt, IValue: pmc},
			3: {Type: protos.MetaInt, IValue: int32(678031992 + 10*i)},
		}
		// only some entries were targeted
		if i%3 == 0 {
			meta[4] = &protos.ScanMetaDataItem{Type: protos.MetaString, SValue: fmt.Sprintf("T%02d", i/3)}
		}
		s.entryMeta.Entries = append(s.entryMeta.Entries, &protos.ScanEntryMetadata{Meta: meta})

		loc := &protos.Spectra{}
		for _, det := range []string{"A", "B"} {
			sp := spectrum(det, protos.SpectrumNormal, pmc)
			loc.Spectra = append(loc.Spectra, sp)
			if bulk[det] == nil {
				bulk[det] = &protos.Spectrum{Detector: det, Type: protos.SpectrumBulk, Counts: make([]uint32, channelCount)}
			}
			for c, v := range sp.Counts {
				bulk[det].Counts[c] += v
			}
		}
		s.spectra.SpectraPerLocation = append(s.spectra.SpectraPerLocation, loc)

		s.beams.BeamLocations = append(s.beams.BeamLocations, &protos.Coordinate3D{
			X: -0.01 + 0.001*float32(i),
			Y: 0.02 - 0.0005*float32(i),
			Z: 0.25,
		})

		// odd entries alternate between a tall narrow peak and a broad
		// intensity mismatch
		if i%2 == 1 {
			peak := &protos.DetectedDiffractionPeak{
				PeakChannel:       int32(4 + i%channelCount/2),
				EffectSize:        6.5 + float32(i),
				BaselineVariation: 0.3,
				GlobalDifference:  0.12,
				DifferenceSigma:   0.04,
				PeakHeight:        0.8,
				Detector:          "A",
			}
			if i%4 == 3 {
				peak.GlobalDifference = 0.2
				peak.PeakHeight = 0.6
			}
			s.peaks.PeaksPerLocation = append(s.peaks.PeaksPerLocation, &protos.DetectedDiffractionPerLocation{
				ID:    fmt.Sprint(pmc),
				Peaks: []*protos.DetectedDiffractionPeak{peak},
			})
		}
	}
	for _, det := range []string{"A", "B"} {
		b := bulk[det]
		for _, v := range b.Counts {
			b.MaxCount = max(b.MaxCount, v)
		}
		cal := bulkCalibration[det]
		b.Meta = map[int32]*protos.ScanMetaDataItem{
			5: {Type: protos.MetaFloat, FValue: cal[0]},
			6: {Type: protos.MetaFloat, FValue: cal[1]},
		}
		s.spectra.BulkSpectra = append(s.spectra.BulkSpectra, b)

		mx := &protos.Spectrum{Detector: det, Type: protos.SpectrumMax, Counts: make([]uint32, channelCount)}
		for _, loc := range s.spectra.SpectraPerLocation {
			for _, sp := range loc.Spectra {
				if sp.Detector != det {
					continue
				}
				for c, v := range sp.Counts {
					mx.Counts[c] = max(mx.Counts[c], v)
				}
			}
		}
		for _, v := range mx.Counts {
			mx.MaxCount = max(mx.MaxCount, v)
		}
		s.spectra.MaxSpectra = append(s.spectra.MaxSpectra, mx)
	}
	return s
}

func spectrum(detector string, typ protos.SpectrumType, pmc int32) *protos.Spectrum {
	sp := &protos.Spectrum{Detector: detector, Type: typ, Counts: make([]uint32, channelCount)}
	for c := range sp.Counts {
		// a bump around channel 6 that moves with the entry
		dist := c - 6 - int(pmc%3)
		sp.Counts[c] = uint32(100 / (1 + dist*dist))
		sp.MaxCount = max(sp.MaxCount, sp.Counts[c])
	}
	return sp
}

// newQuant quantifies every entry of s for each detector. Columns are three
// weight percentages and a count.
func newQuant(id string, s *scanData, name string, detectors []string) *protos.QuantGetResp {
	q := &protos.QuantGetResp{
		Summary: &protos.QuantificationSummary{
			ID:               id,
			ScanID:           s.item.ID,
			Name:             name,
			Elements:         []string{"Na2O", "MgO", "SiO2"},
			Detectors:        detectors,
			Status:           "complete",
			CreatorUserID:    "auth0|5de45d85ca40070f421a3a34",
			CompletedUnixSec: s.item.TimestampUnixSec + 86400,
		},
		Data: &protos.Quantification{
			Labels: []string{"Na2O_%", "MgO_%", "SiO2_%", "total_counts"},
			Types:  []protos.QuantDataType{protos.QuantFloat, protos.QuantFloat, protos.QuantFloat, protos.QuantInt},
		},
	}
	for d, det := range detectors {
		set := &protos.QuantLocationSet{Detector: det}
		for i, e := range s.entries.Entries {
			f := float32(i) + float32(d)/4
			set.Locations = append(set.Locations, &protos.QuantLocation{
				PMC:      e.ID,
				RTT:      208536069,
				SClk:     int32(678031992 + 10*i),
				Filename: fmt.Sprintf("Normal_%s_%d", det, e.ID),
				Values: []*protos.QuantLocationValue{
					{FValue: 2.5 + 0.125*f},
					{FValue: 20 - 0.5*f},
					{FValue: 42 + 0.25*f},
					{IValue: int32(150000 + 1000*i)},
				},
			})
		}
		q.Data.LocationSet = append(q.Data.LocationSet, set)
	}
	return q
}

// imageLocations places the beam of every entry of s on an image, shifted by
// offset pixels.
func imageLocations(s *scanData, version uint32, offset float32) *protos.ImageLocationsForScan {
	l := &protos.ImageLocationsForScan{ScanID: s.item.ID, BeamVersion: version, Instrument: s.item.Instrument}
	for i := range s.entries.Entries {
		l.Locations = append(l.Locations, &protos.Coordinate2D{
			I: 300 + 12.5*float32(i) + offset,
			J: 250 + 3*float32(i%4) + offset,
		})
	}
	return l
}
