// Package protos holds the typed engine responses and their protocol-buffer
// wire encoding.
//
// Decoding copies every string and slice out of the input, so the buffer a
// message was decoded from can be released as soon as Decode returns.
package protos

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"pixlise-client/rpcerr"
)

// Kind names a top-level response message.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindScanList
	KindScanMetaLabelsAndTypes
	KindScanEntryMetadata
	KindStringList
	KindClientMap
	KindSpectrum
	KindQuantList
	KindQuantGet
	KindImageList
	KindROIList
	KindROIGet
	KindROIWrite
	KindScanBeamLocations
	KindScanEntry
	KindImageBeamLocationVersions
	KindImageBeamLocations
	KindDetectedDiffractionPeaks
	KindROIItem
)

var kindNames = map[Kind]string{
	KindScanList:                  "ScanListResp",
	KindScanMetaLabelsAndTypes:    "ScanMetaLabelsAndTypesResp",
	KindScanEntryMetadata:         "ScanEntryMetadataResp",
	KindStringList:                "ClientStringList",
	KindClientMap:                 "ClientMap",
	KindSpectrum:                  "SpectrumResp",
	KindQuantList:                 "QuantListResp",
	KindQuantGet:                  "QuantGetResp",
	KindImageList:                 "ImageListResp",
	KindROIList:                   "RegionOfInterestListResp",
	KindROIGet:                    "RegionOfInterestGetResp",
	KindROIWrite:                  "RegionOfInterestWriteResp",
	KindScanBeamLocations:         "ScanBeamLocationsResp",
	KindScanEntry:                 "ScanEntryResp",
	KindImageBeamLocationVersions: "ImageBeamLocationVersionsResp",
	KindImageBeamLocations:        "ImageBeamLocationsResp",
	KindDetectedDiffractionPeaks:  "DetectedDiffractionPeaksResp",
	KindROIItem:                   "ROIItem",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// message is implemented by every type in this package, nested or not.
type message interface {
	marshal(b []byte) []byte
	unmarshal(b []byte) error
}

// Message is a top-level response.
type Message interface {
	message
	Kind() Kind
}

// New returns an empty message of the given kind, or nil for an unknown kind.
func New(kind Kind) Message {
	switch kind {
	case KindScanList:
		return &ScanListResp{}
	case KindScanMetaLabelsAndTypes:
		return &ScanMetaLabelsAndTypesResp{}
	case KindScanEntryMetadata:
		return &ScanEntryMetadataResp{}
	case KindStringList:
		return &ClientStringList{}
	case KindClientMap:
		return &ClientMap{}
	case KindSpectrum:
		return &SpectrumResp{}
	case KindQuantList:
		return &QuantListResp{}
	case KindQuantGet:
		return &QuantGetResp{}
	case KindImageList:
		return &ImageListResp{}
	case KindROIList:
		return &RegionOfInterestListResp{}
	case KindROIGet:
		return &RegionOfInterestGetResp{}
	case KindROIWrite:
		return &RegionOfInterestWriteResp{}
	case KindScanBeamLocations:
		return &ScanBeamLocationsResp{}
	case KindScanEntry:
		return &ScanEntryResp{}
	case KindImageBeamLocationVersions:
		return &ImageBeamLocationVersionsResp{}
	case KindImageBeamLocations:
		return &ImageBeamLocationsResp{}
	case KindDetectedDiffractionPeaks:
		return &DetectedDiffractionPeaksResp{}
	case KindROIItem:
		return &ROIItem{}
	}
	return nil
}

// Decode parses b as a message of the given kind. Any failure is a
// MalformedPayload error.
func Decode(kind Kind, b []byte) (Message, error) {
	m := New(kind)
	if m == nil {
		return nil, rpcerr.New(rpcerr.KindMalformedPayload, "", "unknown message kind %v", kind)
	}
	if err := m.unmarshal(b); err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindMalformedPayload, "", fmt.Errorf("decode %v: %w", kind, err))
	}
	return m, nil
}

// Unmarshal parses b into m, which should be freshly allocated; repeated
// fields are appended to.
func Unmarshal(b []byte, m Message) error {
	if err := m.unmarshal(b); err != nil {
		return rpcerr.Wrap(rpcerr.KindMalformedPayload, "", fmt.Errorf("decode %v: %w", m.Kind(), err))
	}
	return nil
}

// Marshal encodes m in protocol-buffer wire format.
func Marshal(m Message) []byte {
	return m.marshal(nil)
}

// appendMessage writes an embedded message. A nil message is omitted.
func appendMessage[T any, PT interface {
	*T
	message
}](b []byte, num protowire.Number, m PT) []byte {
	if m == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.marshal(nil))
}

// appendMessages writes a repeated embedded message field. Nil elements are
// written as empty messages so positions are preserved.
func appendMessages[T any, PT interface {
	*T
	message
}](b []byte, num protowire.Number, ms []PT) []byte {
	for _, m := range ms {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		if m == nil {
			b = protowire.AppendVarint(b, 0)
			continue
		}
		b = protowire.AppendBytes(b, m.marshal(nil))
	}
	return b
}

// subNew decodes an embedded message into a new value.
func subNew[T any, PT interface {
	*T
	message
}](f field) (PT, error) {
	m := PT(new(T))
	if err := f.sub(m); err != nil {
		return nil, err
	}
	return m, nil
}

// entry decodes a map entry {key = 1, value = 2}.
func (f field) entry(key, value func(e field) error) error {
	if err := f.want(protowire.BytesType); err != nil {
		return err
	}
	return walk(f.bytes, func(e field) error {
		switch e.num {
		case 1:
			return key(e)
		case 2:
			return value(e)
		}
		return nil
	})
}

// appendKey writes a string map key, which is kept even when empty.
func appendKey(e []byte, k string) []byte {
	e = protowire.AppendTag(e, 1, protowire.BytesType)
	return protowire.AppendString(e, k)
}

func appendStringMap(b []byte, num protowire.Number, m map[string]string) []byte {
	for _, k := range sortedKeys(m) {
		var e []byte
		e = appendKey(e, k)
		e = appendString(e, 2, m[k])
		b = appendEntry(b, num, e)
	}
	return b
}

func decodeStringMapEntry(f field, m *map[string]string) error {
	var k, v string
	err := f.entry(
		func(e field) (err error) { k, err = e.str(); return },
		func(e field) (err error) { v, err = e.str(); return },
	)
	if err != nil {
		return err
	}
	if *m == nil {
		*m = make(map[string]string)
	}
	(*m)[k] = v
	return nil
}
