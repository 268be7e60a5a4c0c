package client

import (
	"context"
	"maps"
	"slices"

	"pixlise-client/protos"
	"pixlise-client/rpcerr"
)

// Names of the operations built on the client from other operations. They
// only appear in errors.
const (
	opScanSpectrum           = "getScanSpectrum"
	opScanSpectrumRangeAsMap = "getScanSpectrumRangeAsMap"
	opBulkSumCalibration     = "getScanBulkSumCalibration"
	opUserCalibration        = "setUserScanCalibration"
	opDiffractionPeaks       = "getDiffractionPeaks"
)

// Labels of the bulk spectrum metadata holding its energy calibration.
const (
	offsetLabel   = "OFFSET"
	xPerChanLabel = "XPERCHAN"
)

// GetScanSpectrum returns one spectrum of a scan. Bulk and max spectra belong
// to the whole scan and ignore entryID; other types are looked up on the entry
// with that id.
func (c *Client) GetScanSpectrum(ctx context.Context, scanID string, entryID int32, typ protos.SpectrumType, detector string) (*protos.Spectrum, error) {
	if err := require(opScanSpectrum, "scanID", scanID); err != nil {
		return nil, err
	}
	if err := require(opScanSpectrum, "detector", detector); err != nil {
		return nil, err
	}
	spectra, err := c.GetScanSpectra(ctx, scanID)
	if err != nil {
		return nil, err
	}

	var candidates []*protos.Spectrum
	switch typ {
	case protos.SpectrumBulk:
		candidates = spectra.BulkSpectra
	case protos.SpectrumMax:
		candidates = spectra.MaxSpectra
	default:
		entries, err := c.GetScanEntries(ctx, scanID)
		if err != nil {
			return nil, err
		}
		loc := slices.IndexFunc(entries.Entries, func(e *protos.ScanEntry) bool { return e.ID == entryID })
		if loc < 0 || loc >= len(spectra.SpectraPerLocation) {
			return nil, rpcerr.New(rpcerr.KindInvalidArgument, opScanSpectrum, "scan %s has no spectra for entry %d", scanID, entryID)
		}
		candidates = spectra.SpectraPerLocation[loc].Spectra
	}
	for _, sp := range candidates {
		if sp.Detector == detector && sp.Type == typ {
			return sp, nil
		}
	}
	return nil, rpcerr.New(rpcerr.KindInvalidArgument, opScanSpectrum, "scan %s has no %v spectrum for detector %s", scanID, typ, detector)
}

// GetScanSpectrumRangeAsMap sums, for every entry, the counts of the
// detector's normal spectrum over channels [channelStart, channelEnd). A
// bound of -1 means the first or last channel.
func (c *Client) GetScanSpectrumRangeAsMap(ctx context.Context, scanID string, channelStart, channelEnd int32, detector string) (*protos.ClientMap, error) {
	if err := require(opScanSpectrumRangeAsMap, "scanID", scanID); err != nil {
		return nil, err
	}
	if err := require(opScanSpectrumRangeAsMap, "detector", detector); err != nil {
		return nil, err
	}
	if channelStart < -1 || channelEnd < -1 {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, opScanSpectrumRangeAsMap, "channel bounds must be -1 or positive")
	}
	spectra, err := c.GetScanSpectra(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if channelStart == -1 {
		channelStart = 0
	}
	if channelEnd == -1 {
		channelEnd = int32(spectra.ChannelCount)
	}
	if channelStart >= channelEnd || channelEnd > int32(spectra.ChannelCount) {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, opScanSpectrumRangeAsMap,
			"invalid channel range [%d, %d) for %d channels", channelStart, channelEnd, spectra.ChannelCount)
	}
	entries, err := c.GetScanEntries(ctx, scanID)
	if err != nil {
		return nil, err
	}

	out := &protos.ClientMap{}
	for i, e := range entries.Entries {
		if i >= len(spectra.SpectraPerLocation) {
			break
		}
		for _, sp := range spectra.SpectraPerLocation[i].Spectra {
			if sp.Detector != detector || sp.Type != protos.SpectrumNormal {
				continue
			}
			var sum int64
			for ch := channelStart; ch < channelEnd && int(ch) < len(sp.Counts); ch++ {
				sum += int64(sp.Counts[ch])
			}
			out.EntryIndexes = append(out.EntryIndexes, e.ID)
			out.IntValues = append(out.IntValues, sum)
		}
	}
	return out, nil
}

// DetectorCalibration converts channels to energy for one detector.
type DetectorCalibration struct {
	StarteV      float32
	PerChanneleV float32
}

// KeV returns the energy of a channel, which may be fractional.
func (d DetectorCalibration) KeV(channel float64) float64 {
	return (float64(d.StarteV) + channel*float64(d.PerChanneleV)) * 0.001
}

// EnergyCalibration holds a calibration per detector.
type EnergyCalibration map[string]DetectorCalibration

// GetScanBulkSumCalibration reads the calibration the instrument stored on
// each detector's bulk sum spectrum.
func (c *Client) GetScanBulkSumCalibration(ctx context.Context, scanID string) (EnergyCalibration, error) {
	if err := require(opBulkSumCalibration, "scanID", scanID); err != nil {
		return nil, err
	}
	labels, err := c.GetScanMetaList(ctx, scanID)
	if err != nil {
		return nil, err
	}
	offsetIdx := slices.Index(labels.MetaLabels, offsetLabel)
	perChanIdx := slices.Index(labels.MetaLabels, xPerChanLabel)
	if offsetIdx < 0 || perChanIdx < 0 {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, opBulkSumCalibration, "scan %s has no %s and %s metadata", scanID, offsetLabel, xPerChanLabel)
	}
	spectra, err := c.GetScanSpectra(ctx, scanID)
	if err != nil {
		return nil, err
	}

	cal := EnergyCalibration{}
	for _, sp := range spectra.BulkSpectra {
		offset, ok1 := sp.Meta[int32(offsetIdx)]
		perChan, ok2 := sp.Meta[int32(perChanIdx)]
		if !ok1 || !ok2 {
			continue
		}
		cal[sp.Detector] = DetectorCalibration{StarteV: offset.FValue, PerChanneleV: perChan.FValue}
	}
	if len(cal) == 0 {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, opBulkSumCalibration, "scan %s bulk spectra carry no calibration", scanID)
	}
	return cal, nil
}

// SetUserScanCalibration records a calibration for one detector of a scan.
// It is kept by this Client only and used when peaks are read with
// CalibrationUser.
func (c *Client) SetUserScanCalibration(scanID, detector string, starteV, perChanneleV float32) error {
	if err := require(opUserCalibration, "scanID", scanID); err != nil {
		return err
	}
	if err := require(opUserCalibration, "detector", detector); err != nil {
		return err
	}
	if perChanneleV <= 0 {
		return rpcerr.New(rpcerr.KindInvalidArgument, opUserCalibration, "eV per channel must be positive, got %v", perChanneleV)
	}

	c.calMu.Lock()
	defer c.calMu.Unlock()
	if c.userCal == nil {
		c.userCal = map[string]EnergyCalibration{}
	}
	if c.userCal[scanID] == nil {
		c.userCal[scanID] = EnergyCalibration{}
	}
	c.userCal[scanID][detector] = DetectorCalibration{StarteV: starteV, PerChanneleV: perChanneleV}
	return nil
}

// UserScanCalibration returns a copy of the calibrations set for a scan.
func (c *Client) UserScanCalibration(scanID string) (EnergyCalibration, bool) {
	c.calMu.Lock()
	defer c.calMu.Unlock()
	cal, ok := c.userCal[scanID]
	if !ok {
		return nil, false
	}
	return maps.Clone(cal), true
}
