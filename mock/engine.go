// Package mock is an in-memory engine serving a small seeded dataset. It lets
// the client run end to end, in process or behind any engine host, without
// the real engine.
package mock

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pixlise-client/config"
	"pixlise-client/indexcompress"
	"pixlise-client/message"
	"pixlise-client/protos"
	"pixlise-client/server"
)

// Engine serves every operation of the client catalogue from a Dataset.
type Engine struct {
	mu      sync.Mutex
	data    *Dataset
	nextROI int
	now     func() time.Time
	logger  *zap.Logger

	// when set, authenticate only accepts these credentials
	user, password string
}

type Option func(*Engine)

func WithCredentials(user, password string) Option {
	return func(e *Engine) { e.user, e.password = user, password }
}

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithDataset(d *Dataset) Option { return func(e *Engine) { e.data = d } }

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.data == nil {
		e.data = Seed()
	}
	return e
}

// NewServer returns a server with e registered.
func NewServer(e *Engine, opts ...server.Option) *server.Server {
	s := server.NewServer(opts...)
	if err := s.Register(e); err != nil {
		// Engine always has operation methods
		panic(err)
	}
	return s
}

// ROICount returns the number of stored ROIs.
func (e *Engine) ROICount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.data.rois)
}

func reply(req *server.Request, m protos.Message) error {
	return req.Reply(protos.Marshal(m))
}

func (e *Engine) scan(id string) (*scanData, error) {
	for _, s := range e.data.scans {
		if s.item.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("scan %q not found", id)
}

// scanArg reads a required scan id argument and looks it up.
func (e *Engine) scanArg(req *server.Request, i int) (*scanData, error) {
	id, err := req.String(i)
	if err != nil {
		return nil, err
	}
	return e.scan(id)
}

func (e *Engine) quant(id string) (*protos.QuantGetResp, error) {
	for _, q := range e.data.quants {
		if q.Summary.ID == id {
			return q, nil
		}
	}
	return nil, fmt.Errorf("quantification %q not found", id)
}

func (e *Engine) Authenticate(ctx context.Context, req *server.Request) error {
	path, err := req.String(0)
	if err != nil {
		return err
	}
	var cfg *config.File
	if strings.HasPrefix(strings.TrimSpace(path), "{") {
		if cfg, err = config.Parse([]byte(path)); err == nil {
			cfg.Source = "inline"
		}
	} else {
		cfg, err = config.Resolve(path)
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config from %q: %w", cfg.Source, err)
	}
	if e.user != "" && (cfg.User != e.user || cfg.Password != e.password) {
		return fmt.Errorf("authentication failed for user %q", cfg.User)
	}
	e.logger.Info("client authenticated", zap.String("user", cfg.User), zap.String("source", cfg.Source))
	return nil
}

func (e *Engine) ListScans(ctx context.Context, req *server.Request) error {
	id, err := req.String(0)
	if err != nil {
		return err
	}
	resp := &protos.ScanListResp{}
	for _, s := range e.data.scans {
		if id == "" || s.item.ID == id {
			resp.Scans = append(resp.Scans, s.item)
		}
	}
	return reply(req, resp)
}

func (e *Engine) GetScanMetaList(ctx context.Context, req *server.Request) error {
	s, err := e.scanArg(req, 0)
	if err != nil {
		return err
	}
	return reply(req, s.labels)
}

func (e *Engine) GetScanMetaData(ctx context.Context, req *server.Request) error {
	s, err := e.scanArg(req, 0)
	if err != nil {
		return err
	}
	return reply(req, s.entryMeta)
}

// GetScanEntryDataColumns lists the labels present on at least one entry.
func (e *Engine) GetScanEntryDataColumns(ctx context.Context, req *server.Request) error {
	s, err := e.scanArg(req, 0)
	if err != nil {
		return err
	}
	present := map[int32]bool{}
	for _, m := range s.entryMeta.Entries {
		for idx := range m.Meta {
			present[idx] = true
		}
	}
	names := &protos.ClientStringList{}
	for idx := range present {
		names.Strings = append(names.Strings, s.labels.MetaLabels[idx])
	}
	slices.Sort(names.Strings)
	return reply(req, names)
}

// GetScanEntryDataColumn returns one metadata label as a column keyed by
// entry id. Entries without a value are left out.
func (e *Engine) GetScanEntryDataColumn(ctx context.Context, req *server.Request) error {
	s, err := e.scanArg(req, 0)
	if err != nil {
		return err
	}
	column, err := req.String(1)
	if err != nil {
		return err
	}
	idx := slices.Index(s.labels.MetaLabels, column)
	if idx < 0 {
		return fmt.Errorf("no meta for column named %v", column)
	}
	typ := s.labels.MetaTypes[idx]

	col := &protos.ClientMap{}
	for i, m := range s.entryMeta.Entries {
		v, ok := m.Meta[int32(idx)]
		if !ok {
			continue
		}
		switch typ {
		case protos.MetaInt:
			col.IntValues = append(col.IntValues, int64(v.IValue))
		case protos.MetaFloat:
			col.FloatValues = append(col.FloatValues, float64(v.FValue))
		default:
			col.StringValues = append(col.StringValues, v.SValue)
		}
		col.EntryIndexes = append(col.EntryIndexes, s.entries.Entries[i].ID)
	}
	return reply(req, col)
}

func (e *Engine) GetScanSpectra(ctx context.Context, req *server.Request) error {
	s, err := e.scanArg(req, 0)
	if err != nil {
		return err
	}
	return reply(req, s.spectra)
}

func (e *Engine) ListScanQuants(ctx context.Context, req *server.Request) error {
	id, err := req.String(0)
	if err != nil {
		return err
	}
	resp := &protos.QuantListResp{}
	for _, q := range e.data.quants {
		if id == "" || q.Summary.ScanID == id {
			resp.Quants = append(resp.Quants, q.Summary)
		}
	}
	return reply(req, resp)
}

func (e *Engine) GetQuant(ctx context.Context, req *server.Request) error {
	id, err := req.String(0)
	if err != nil {
		return err
	}
	summaryOnly, err := req.Bool(1)
	if err != nil {
		return err
	}
	q, err := e.quant(id)
	if err != nil {
		return err
	}
	if summaryOnly {
		return reply(req, &protos.QuantGetResp{Summary: q.Summary})
	}
	return reply(req, q)
}

func (e *Engine) GetQuantColumns(ctx context.Context, req *server.Request) error {
	id, err := req.String(0)
	if err != nil {
		return err
	}
	q, err := e.quant(id)
	if err != nil {
		return err
	}
	return reply(req, &protos.ClientStringList{Strings: q.Data.Labels})
}

// GetQuantColumn returns one quantified column of one detector keyed by
// entry id.
func (e *Engine) GetQuantColumn(ctx context.Context, req *server.Request) error {
	id, err := req.String(0)
	if err != nil {
		return err
	}
	column, err := req.String(1)
	if err != nil {
		return err
	}
	detector, err := req.String(2)
	if err != nil {
		return err
	}
	q, err := e.quant(id)
	if err != nil {
		return err
	}
	idx := q.Data.Column(column)
	if idx < 0 {
		return fmt.Errorf("no quant column named %v", column)
	}
	set := q.Data.Detector(detector)
	if set == nil {
		return fmt.Errorf("detector %q not found in quant", detector)
	}

	col := &protos.ClientMap{}
	for _, loc := range set.Locations {
		col.EntryIndexes = append(col.EntryIndexes, loc.PMC)
		if q.Data.Types[idx] == protos.QuantInt {
			col.IntValues = append(col.IntValues, int64(loc.Values[idx].IValue))
		} else {
			col.FloatValues = append(col.FloatValues, float64(loc.Values[idx].FValue))
		}
	}
	return reply(req, col)
}

// ListScanImages takes scan ids joined with message.IDSeparator. An image
// matches if it is associated with any of them, or with all of them when
// mustIncludeAll is set.
func (e *Engine) ListScanImages(ctx context.Context, req *server.Request) error {
	joined, err := req.String(0)
	if err != nil {
		return err
	}
	mustIncludeAll, err := req.Bool(1)
	if err != nil {
		return err
	}
	if joined == "" {
		return fmt.Errorf("no scan ids given")
	}
	ids := strings.Split(joined, message.IDSeparator)

	resp := &protos.ImageListResp{}
	for _, img := range e.data.images {
		matches := 0
		for _, id := range ids {
			if slices.Contains(img.AssociatedScanIDs, id) {
				matches++
			}
		}
		if (mustIncludeAll && matches == len(ids)) || (!mustIncludeAll && matches > 0) {
			resp.Images = append(resp.Images, img)
		}
	}
	return reply(req, resp)
}

func (e *Engine) ListScanROIs(ctx context.Context, req *server.Request) error {
	id, err := req.String(0)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	resp := &protos.RegionOfInterestListResp{RegionsOfInterest: map[string]*protos.ROIItemSummary{}}
	for roiID, roi := range e.data.rois {
		if id == "" || roi.ScanID == id {
			resp.RegionsOfInterest[roiID] = roi.Summary()
		}
	}
	return reply(req, resp)
}

func (e *Engine) GetROI(ctx context.Context, req *server.Request) error {
	id, err := req.String(0)
	if err != nil {
		return err
	}
	isMIST, err := req.Bool(1)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	roi, ok := e.data.rois[id]
	if !ok || roi.IsMIST != isMIST {
		return fmt.Errorf("roi %q not found", id)
	}
	return reply(req, &protos.RegionOfInterestGetResp{RegionOfInterest: roi})
}

// CreateROI stores the JSON encoded ROI under a new id.
func (e *Engine) CreateROI(ctx context.Context, req *server.Request) error {
	doc, err := req.String(0)
	if err != nil {
		return err
	}
	isMIST, err := req.Bool(1)
	if err != nil {
		return err
	}
	roi, err := protos.UnmarshalROIJSON([]byte(doc))
	if err != nil {
		return fmt.Errorf("failed to decode roi: %w", err)
	}
	if roi.ID != "" {
		return fmt.Errorf("roi already has id %q", roi.ID)
	}
	if roi.Name == "" {
		return fmt.Errorf("roi name is required")
	}
	s, err := e.scan(roi.ScanID)
	if err != nil {
		return err
	}
	if _, err := indexcompress.Decode(roi.ScanEntryIndexesEncoded, len(s.entries.Entries)); err != nil {
		return fmt.Errorf("invalid roi entry indexes: %w", err)
	}
	if isMIST && roi.MistROIItem == nil {
		return fmt.Errorf("mist roi needs mistROIItem")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextROI++
	roi.ID = fmt.Sprintf("roi-%s-%d", roi.ScanID, e.nextROI)
	roi.IsMIST = isMIST
	roi.ModifiedUnixSec = uint32(e.now().Unix())
	e.data.rois[roi.ID] = roi
	return reply(req, &protos.RegionOfInterestWriteResp{RegionOfInterest: roi})
}

// DeleteROI allocates nothing on success.
func (e *Engine) DeleteROI(ctx context.Context, req *server.Request) error {
	id, err := req.String(0)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.data.rois[id]; !ok {
		return fmt.Errorf("roi %q not found", id)
	}
	delete(e.data.rois, id)
	return nil
}

func (e *Engine) GetScanBeamLocations(ctx context.Context, req *server.Request) error {
	s, err := e.scanArg(req, 0)
	if err != nil {
		return err
	}
	return reply(req, s.beams)
}

func (e *Engine) GetScanEntries(ctx context.Context, req *server.Request) error {
	s, err := e.scanArg(req, 0)
	if err != nil {
		return err
	}
	return reply(req, s.entries)
}

func (e *Engine) imageBeams(name string) (*protos.ImageLocations, error) {
	l, ok := e.data.imageBeams[name]
	if !ok {
		return nil, fmt.Errorf("no beam locations for image %q", name)
	}
	return l, nil
}

func (e *Engine) GetScanImageBeamLocationVersions(ctx context.Context, req *server.Request) error {
	name, err := req.String(0)
	if err != nil {
		return err
	}
	l, err := e.imageBeams(name)
	if err != nil {
		return err
	}
	resp := &protos.ImageBeamLocationVersionsResp{BeamVersionPerScan: map[string]*protos.AvailableVersions{}}
	for _, ls := range l.LocationPerScan {
		v := resp.BeamVersionPerScan[ls.ScanID]
		if v == nil {
			v = &protos.AvailableVersions{}
			resp.BeamVersionPerScan[ls.ScanID] = v
		}
		v.Versions = append(v.Versions, ls.BeamVersion)
	}
	return reply(req, resp)
}

// GetScanImageBeamLocations returns the locations of one scan on an image.
// Version -1 selects the latest one.
func (e *Engine) GetScanImageBeamLocations(ctx context.Context, req *server.Request) error {
	name, err := req.String(0)
	if err != nil {
		return err
	}
	scanID, err := req.String(1)
	if err != nil {
		return err
	}
	version, err := req.Int32(2)
	if err != nil {
		return err
	}
	l, err := e.imageBeams(name)
	if err != nil {
		return err
	}

	var found *protos.ImageLocationsForScan
	for _, ls := range l.LocationPerScan {
		if ls.ScanID != scanID {
			continue
		}
		if version < 0 && (found == nil || ls.BeamVersion > found.BeamVersion) {
			found = ls
		} else if version >= 0 && ls.BeamVersion == uint32(version) {
			found = ls
		}
	}
	if found == nil {
		return fmt.Errorf("no beam locations for scan %q version %d on image %q", scanID, version, name)
	}
	return reply(req, &protos.ImageBeamLocationsResp{Locations: &protos.ImageLocations{
		ImageName:       name,
		LocationPerScan: []*protos.ImageLocationsForScan{found},
	}})
}

func (e *Engine) GetDetectedDiffractionPeaks(ctx context.Context, req *server.Request) error {
	s, err := e.scanArg(req, 0)
	if err != nil {
		return err
	}
	return reply(req, s.peaks)
}

// SaveMapData stores a base64 encoded ClientMap under a caller chosen key,
// replacing any earlier map with that key. It allocates nothing on success.
func (e *Engine) SaveMapData(ctx context.Context, req *server.Request) error {
	key, err := req.String(0)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("map key is required")
	}
	doc, err := req.String(1)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(doc)
	if err != nil {
		return fmt.Errorf("failed to decode map %q: %w", key, err)
	}
	m := &protos.ClientMap{}
	if err := protos.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("failed to decode map %q: %w", key, err)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("map %q: %w", key, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.data.maps[key] = m
	return nil
}

func (e *Engine) LoadMapData(ctx context.Context, req *server.Request) error {
	key, err := req.String(0)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.data.maps[key]
	if !ok {
		return fmt.Errorf("map %q not found", key)
	}
	return reply(req, m)
}
