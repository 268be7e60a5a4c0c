package client

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"pixlise-client/protos"
	"pixlise-client/rpcerr"
)

// CalibrationSource picks the energy calibration used to place peaks.
type CalibrationSource int

const (
	CalibrationBulkSum CalibrationSource = iota // stored on the bulk spectra
	CalibrationUser                             // set with SetUserScanCalibration
)

const (
	minEffectSize      = 6
	roughnessThreshold = 0.16
	minPeakHeight      = 0.64
	peakHalfWidth      = 15 * 0.5 // channels
	energyDetector     = "A"
)

// DiffractionPeak is a detected peak with its energy span.
type DiffractionPeak struct {
	EntryID int32
	Peak    *protos.DetectedDiffractionPeak

	EnergykeV      float64
	StartEnergykeV float64
	EndEnergykeV   float64
}

// RoughnessItem records an entry whose spectrum differs broadly from the rest
// of the scan.
type RoughnessItem struct {
	EntryID          int32
	GlobalDifference float32
}

type DiffractionData struct {
	Peaks     []DiffractionPeak
	Roughness []RoughnessItem
}

// GetDiffractionPeaks sorts the engine's detected peaks into diffraction
// peaks and roughness. Peaks with an effect size of 6 or less are dropped. A
// peak whose global difference is above 0.16 marks its entry as rough, once
// per entry; otherwise a peak taller than 0.64 is a diffraction peak 15
// channels wide, placed in energy with detector A's calibration.
func (c *Client) GetDiffractionPeaks(ctx context.Context, scanID string, source CalibrationSource) (*DiffractionData, error) {
	if err := require(opDiffractionPeaks, "scanID", scanID); err != nil {
		return nil, err
	}
	cal, err := c.calibration(ctx, scanID, source)
	if err != nil {
		return nil, err
	}
	detected, err := c.GetDetectedDiffractionPeaks(ctx, scanID)
	if err != nil {
		return nil, err
	}
	detCal, hasCal := cal[energyDetector]

	out := &DiffractionData{}
	rough := map[int32]bool{}
	for _, loc := range detected.PeaksPerLocation {
		id, err := strconv.ParseInt(loc.ID, 10, 32)
		if err != nil {
			c.logger.Warn("skipping diffraction location with bad id", zap.String("scan", scanID), zap.String("id", loc.ID))
			continue
		}
		entryID := int32(id)
		for _, p := range loc.Peaks {
			if p.EffectSize <= minEffectSize {
				continue
			}
			switch {
			case p.GlobalDifference > roughnessThreshold:
				if !rough[entryID] {
					out.Roughness = append(out.Roughness, RoughnessItem{EntryID: entryID, GlobalDifference: p.GlobalDifference})
					rough[entryID] = true
				}
			case p.PeakHeight > minPeakHeight && hasCal:
				ch := float64(p.PeakChannel)
				out.Peaks = append(out.Peaks, DiffractionPeak{
					EntryID:        entryID,
					Peak:           p,
					EnergykeV:      detCal.KeV(ch),
					StartEnergykeV: detCal.KeV(ch - peakHalfWidth),
					EndEnergykeV:   detCal.KeV(ch + peakHalfWidth),
				})
			}
		}
	}
	return out, nil
}

func (c *Client) calibration(ctx context.Context, scanID string, source CalibrationSource) (EnergyCalibration, error) {
	switch source {
	case CalibrationBulkSum:
		return c.GetScanBulkSumCalibration(ctx, scanID)
	case CalibrationUser:
		cal, ok := c.UserScanCalibration(scanID)
		if !ok {
			return nil, rpcerr.New(rpcerr.KindInvalidArgument, opDiffractionPeaks, "no user calibration set for scan %s", scanID)
		}
		return cal, nil
	}
	return nil, rpcerr.New(rpcerr.KindInvalidArgument, opDiffractionPeaks, "unknown calibration source %d", source)
}

// GetDiffractionAsMap counts diffraction peaks per entry. Every entry with a
// beam location and a spectrum is in the map, with zero when it has no peak.
// Only peaks whose channel is in [channelStart, channelEnd) count; -1 leaves
// that side open.
func (c *Client) GetDiffractionAsMap(ctx context.Context, scanID string, source CalibrationSource, channelStart, channelEnd int32) (*protos.ClientMap, error) {
	data, err := c.GetDiffractionPeaks(ctx, scanID, source)
	if err != nil {
		return nil, err
	}
	entries, err := c.GetScanEntries(ctx, scanID)
	if err != nil {
		return nil, err
	}

	out := &protos.ClientMap{}
	idx := map[int32]int{}
	for _, e := range entries.Entries {
		if e.Location && e.NormalSpectra+e.DwellSpectra+e.BulkSpectra+e.MaxSpectra > 0 {
			idx[e.ID] = len(out.EntryIndexes)
			out.EntryIndexes = append(out.EntryIndexes, e.ID)
			out.IntValues = append(out.IntValues, 0)
		}
	}
	for _, p := range data.Peaks {
		ch := p.Peak.PeakChannel
		if (channelStart != -1 && ch < channelStart) || (channelEnd != -1 && ch >= channelEnd) {
			continue
		}
		if i, ok := idx[p.EntryID]; ok {
			out.IntValues[i]++
		}
	}
	return out, nil
}

// GetRoughnessAsMap maps each rough entry to its global difference.
func (c *Client) GetRoughnessAsMap(ctx context.Context, scanID string, source CalibrationSource) (*protos.ClientMap, error) {
	data, err := c.GetDiffractionPeaks(ctx, scanID, source)
	if err != nil {
		return nil, err
	}
	out := &protos.ClientMap{}
	for _, r := range data.Roughness {
		out.EntryIndexes = append(out.EntryIndexes, r.EntryID)
		out.FloatValues = append(out.FloatValues, float64(r.GlobalDifference))
	}
	return out, nil
}
