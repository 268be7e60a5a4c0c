package message

// Operation names understood by the engine.
const (
	OpAuthenticate                     = "authenticate"
	OpListScans                        = "listScans"
	OpGetScanMetaList                  = "getScanMetaList"
	OpGetScanMetaData                  = "getScanMetaData"
	OpGetScanEntryDataColumns          = "getScanEntryDataColumns"
	OpGetScanEntryDataColumn           = "getScanEntryDataColumn"
	OpGetScanSpectra                   = "getScanSpectra"
	OpListScanQuants                   = "listScanQuants"
	OpGetQuant                         = "getQuant"
	OpGetQuantColumns                  = "getQuantColumns"
	OpGetQuantColumn                   = "getQuantColumn"
	OpListScanImages                   = "listScanImages"
	OpListScanROIs                     = "listScanROIs"
	OpGetROI                           = "getROI"
	OpCreateROI                        = "createROI"
	OpDeleteROI                        = "deleteROI"
	OpGetScanBeamLocations             = "getScanBeamLocations"
	OpGetScanEntries                   = "getScanEntries"
	OpGetScanImageBeamLocationVersions = "getScanImageBeamLocationVersions"
	OpGetScanImageBeamLocations        = "getScanImageBeamLocations"
	OpGetDetectedDiffractionPeaks      = "getDetectedDiffractionPeaks"
	OpSaveMapData                      = "saveMapData"
	OpLoadMapData                      = "loadMapData"
)

// IDSeparator joins multiple identifiers into one string argument.
const IDSeparator = "|"

// ReadOnly reports whether op only reads engine state, which makes it safe to
// repeat after a transport failure.
func ReadOnly(op string) bool {
	switch op {
	case OpAuthenticate, OpCreateROI, OpDeleteROI, OpSaveMapData:
		return false
	}
	return true
}
