package client

import (
	"context"
	"encoding/base64"
	"strings"

	"pixlise-client/message"
	"pixlise-client/protos"
	"pixlise-client/rpcerr"
)

func require(op, name, value string) error {
	if value == "" {
		return rpcerr.New(rpcerr.KindInvalidArgument, op, "%s is required", name)
	}
	return nil
}

// ListScans lists the scans the user can see. A non-empty scanID restricts
// the list to that scan.
func (c *Client) ListScans(ctx context.Context, scanID string) (*protos.ScanListResp, error) {
	return call[protos.ScanListResp](ctx, c, message.OpListScans, message.String(scanID))
}

// GetScanMetaList returns the metadata labels of a scan and their types.
func (c *Client) GetScanMetaList(ctx context.Context, scanID string) (*protos.ScanMetaLabelsAndTypesResp, error) {
	if err := require(message.OpGetScanMetaList, "scanID", scanID); err != nil {
		return nil, err
	}
	return call[protos.ScanMetaLabelsAndTypesResp](ctx, c, message.OpGetScanMetaList, message.String(scanID))
}

// GetScanMetaData returns the metadata of every entry, indexed like the
// labels of GetScanMetaList.
func (c *Client) GetScanMetaData(ctx context.Context, scanID string) (*protos.ScanEntryMetadataResp, error) {
	if err := require(message.OpGetScanMetaData, "scanID", scanID); err != nil {
		return nil, err
	}
	return call[protos.ScanEntryMetadataResp](ctx, c, message.OpGetScanMetaData, message.String(scanID))
}

// GetScanEntryDataColumns lists the metadata columns present on at least one
// entry, sorted.
func (c *Client) GetScanEntryDataColumns(ctx context.Context, scanID string) (*protos.ClientStringList, error) {
	if err := require(message.OpGetScanEntryDataColumns, "scanID", scanID); err != nil {
		return nil, err
	}
	return call[protos.ClientStringList](ctx, c, message.OpGetScanEntryDataColumns, message.String(scanID))
}

// GetScanEntryDataColumn returns one metadata column keyed by entry id.
func (c *Client) GetScanEntryDataColumn(ctx context.Context, scanID, column string) (*protos.ClientMap, error) {
	op := message.OpGetScanEntryDataColumn
	if err := require(op, "scanID", scanID); err != nil {
		return nil, err
	}
	if err := require(op, "column", column); err != nil {
		return nil, err
	}
	return call[protos.ClientMap](ctx, c, op, message.String(scanID), message.String(column))
}

func (c *Client) GetScanSpectra(ctx context.Context, scanID string) (*protos.SpectrumResp, error) {
	if err := require(message.OpGetScanSpectra, "scanID", scanID); err != nil {
		return nil, err
	}
	return call[protos.SpectrumResp](ctx, c, message.OpGetScanSpectra, message.String(scanID))
}

// ListScanQuants lists quantifications, of one scan if scanID is set.
func (c *Client) ListScanQuants(ctx context.Context, scanID string) (*protos.QuantListResp, error) {
	return call[protos.QuantListResp](ctx, c, message.OpListScanQuants, message.String(scanID))
}

// GetQuant fetches a quantification. With summaryOnly the data is left out.
func (c *Client) GetQuant(ctx context.Context, quantID string, summaryOnly bool) (*protos.QuantGetResp, error) {
	if err := require(message.OpGetQuant, "quantID", quantID); err != nil {
		return nil, err
	}
	return call[protos.QuantGetResp](ctx, c, message.OpGetQuant, message.String(quantID), message.Bool(summaryOnly))
}

func (c *Client) GetQuantColumns(ctx context.Context, quantID string) (*protos.ClientStringList, error) {
	if err := require(message.OpGetQuantColumns, "quantID", quantID); err != nil {
		return nil, err
	}
	return call[protos.ClientStringList](ctx, c, message.OpGetQuantColumns, message.String(quantID))
}

// GetQuantColumn returns one quantified column of one detector keyed by entry
// id.
func (c *Client) GetQuantColumn(ctx context.Context, quantID, column, detector string) (*protos.ClientMap, error) {
	op := message.OpGetQuantColumn
	for _, a := range [][2]string{{"quantID", quantID}, {"column", column}, {"detector", detector}} {
		if err := require(op, a[0], a[1]); err != nil {
			return nil, err
		}
	}
	return call[protos.ClientMap](ctx, c, op, message.String(quantID), message.String(column), message.String(detector))
}

// ListScanImages lists images associated with any of scanIDs, or with all of
// them if mustIncludeAll is set.
func (c *Client) ListScanImages(ctx context.Context, scanIDs []string, mustIncludeAll bool) (*protos.ImageListResp, error) {
	op := message.OpListScanImages
	if len(scanIDs) == 0 {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, op, "at least one scan id is required")
	}
	for i, id := range scanIDs {
		if id == "" {
			return nil, rpcerr.New(rpcerr.KindInvalidArgument, op, "scan id %d is empty", i)
		}
		if strings.Contains(id, message.IDSeparator) {
			return nil, rpcerr.New(rpcerr.KindInvalidArgument, op, "scan id %q contains %q", id, message.IDSeparator)
		}
	}
	return call[protos.ImageListResp](ctx, c, op,
		message.String(strings.Join(scanIDs, message.IDSeparator)), message.Bool(mustIncludeAll))
}

func (c *Client) ListScanROIs(ctx context.Context, scanID string) (*protos.RegionOfInterestListResp, error) {
	if err := require(message.OpListScanROIs, "scanID", scanID); err != nil {
		return nil, err
	}
	return call[protos.RegionOfInterestListResp](ctx, c, message.OpListScanROIs, message.String(scanID))
}

// GetROI fetches an ROI. isMIST must match how the ROI was created.
func (c *Client) GetROI(ctx context.Context, id string, isMIST bool) (*protos.RegionOfInterestGetResp, error) {
	if err := require(message.OpGetROI, "id", id); err != nil {
		return nil, err
	}
	return call[protos.RegionOfInterestGetResp](ctx, c, message.OpGetROI, message.String(id), message.Bool(isMIST))
}

// CreateROI stores a new ROI. The engine assigns its id, which must be empty
// here.
func (c *Client) CreateROI(ctx context.Context, roi *protos.ROIItem, isMIST bool) (*protos.RegionOfInterestWriteResp, error) {
	op := message.OpCreateROI
	if roi == nil {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, op, "roi is required")
	}
	if roi.ID != "" {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, op, "new roi already has id %q", roi.ID)
	}
	if err := require(op, "roi.scanId", roi.ScanID); err != nil {
		return nil, err
	}
	if err := require(op, "roi.name", roi.Name); err != nil {
		return nil, err
	}
	doc, err := protos.MarshalROIJSON(roi)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindInvalidArgument, op, err)
	}
	return call[protos.RegionOfInterestWriteResp](ctx, c, op, message.String(string(doc)), message.Bool(isMIST))
}

func (c *Client) DeleteROI(ctx context.Context, id string) error {
	if err := require(message.OpDeleteROI, "id", id); err != nil {
		return err
	}
	return c.roundTrip(ctx, message.OpDeleteROI, nil, message.String(id))
}

func (c *Client) GetScanBeamLocations(ctx context.Context, scanID string) (*protos.ScanBeamLocationsResp, error) {
	if err := require(message.OpGetScanBeamLocations, "scanID", scanID); err != nil {
		return nil, err
	}
	return call[protos.ScanBeamLocationsResp](ctx, c, message.OpGetScanBeamLocations, message.String(scanID))
}

func (c *Client) GetScanEntries(ctx context.Context, scanID string) (*protos.ScanEntryResp, error) {
	if err := require(message.OpGetScanEntries, "scanID", scanID); err != nil {
		return nil, err
	}
	return call[protos.ScanEntryResp](ctx, c, message.OpGetScanEntries, message.String(scanID))
}

// GetScanImageBeamLocationVersions lists, per scan, the beam location versions
// available for an image.
func (c *Client) GetScanImageBeamLocationVersions(ctx context.Context, imageName string) (*protos.ImageBeamLocationVersionsResp, error) {
	op := message.OpGetScanImageBeamLocationVersions
	if err := require(op, "imageName", imageName); err != nil {
		return nil, err
	}
	return call[protos.ImageBeamLocationVersionsResp](ctx, c, op, message.String(imageName))
}

// LatestVersion selects the most recent beam location version.
const LatestVersion = -1

// GetScanImageBeamLocations returns where the beam of a scan hit an image.
// Pass LatestVersion for the most recent version.
func (c *Client) GetScanImageBeamLocations(ctx context.Context, imageName, scanID string, version int32) (*protos.ImageBeamLocationsResp, error) {
	op := message.OpGetScanImageBeamLocations
	if err := require(op, "imageName", imageName); err != nil {
		return nil, err
	}
	if err := require(op, "scanID", scanID); err != nil {
		return nil, err
	}
	if version < LatestVersion {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, op, "invalid version %d", version)
	}
	return call[protos.ImageBeamLocationsResp](ctx, c, op,
		message.String(imageName), message.String(scanID), message.Int32(version))
}

func (c *Client) GetDetectedDiffractionPeaks(ctx context.Context, scanID string) (*protos.DetectedDiffractionPeaksResp, error) {
	if err := require(message.OpGetDetectedDiffractionPeaks, "scanID", scanID); err != nil {
		return nil, err
	}
	return call[protos.DetectedDiffractionPeaksResp](ctx, c, message.OpGetDetectedDiffractionPeaks, message.String(scanID))
}

// SaveMapData stores data on the engine under key, replacing any map saved
// with the same key.
func (c *Client) SaveMapData(ctx context.Context, key string, data *protos.ClientMap) error {
	if err := require(message.OpSaveMapData, "key", key); err != nil {
		return err
	}
	if data == nil {
		return rpcerr.New(rpcerr.KindInvalidArgument, message.OpSaveMapData, "data is required")
	}
	if err := data.Validate(); err != nil {
		return rpcerr.Wrap(rpcerr.KindInvalidArgument, message.OpSaveMapData, err)
	}
	doc := base64.StdEncoding.EncodeToString(protos.Marshal(data))
	return c.roundTrip(ctx, message.OpSaveMapData, nil, message.String(key), message.String(doc))
}

func (c *Client) LoadMapData(ctx context.Context, key string) (*protos.ClientMap, error) {
	if err := require(message.OpLoadMapData, "key", key); err != nil {
		return nil, err
	}
	return call[protos.ClientMap](ctx, c, message.OpLoadMapData, message.String(key))
}

// NewROI builds an ROI over the given entry indexes, ready for CreateROI.
func NewROI(scanID, name string, entryIndexes []int32) (*protos.ROIItem, error) {
	roi := &protos.ROIItem{ScanID: scanID, Name: name}
	if err := roi.SetEntryIndexes(entryIndexes); err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindInvalidArgument, "", err)
	}
	return roi, nil
}
