package vstore

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Field names stamped on every record at creation.
const (
	FieldID              = "id"
	FieldCreateDate      = "createDate"
	FieldCreateTimestamp = "createTimestamp"
)

// Record is a stored document: an arbitrary attribute map.
type Record map[string]any

// ID returns the record's primary key, or nil if it has none.
func (r Record) ID() any {
	return r[FieldID]
}

// CreateTimestamp returns the creation time in epoch milliseconds, or 0.
func (r Record) CreateTimestamp() int64 {
	switch v := r[FieldCreateTimestamp].(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a shallow merge of patch over r. The primary key and the
// creation stamps of r are kept even if patch carries other values.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	for _, f := range [...]string{FieldID, FieldCreateDate, FieldCreateTimestamp} {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Value layout: flags (uvarint), writer version (uvarint), checksum of the
// payload (xxhash64, fixed 8 bytes), msgpack payload.
const (
	valueFormatVer1 = 1

	vfVer1          = uint64(valueFormatVer1)
	vfVerMask       = uint64(0xF)
	vfSupportedMask = vfVerMask
)

func encodeRecord(buf []byte, rec Record, writerVer uint64) ([]byte, error) {
	var payload bytesBuilder
	enc := msgpack.GetEncoder()
	enc.Reset(&payload)
	enc.SetSortMapKeys(true)
	err := enc.Encode(map[string]any(rec))
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record using MsgPack: %w", err)
	}

	buf = appendUvarint(buf, vfVer1)
	buf = appendUvarint(buf, writerVer)
	buf = appendFixedUint64(buf, xxhash.Sum64(payload.Buf))
	return appendRaw(buf, payload.Buf), nil
}

func decodeRecord(raw []byte) (Record, error) {
	d := makeByteDecoder(raw)
	flags, err := d.Uvarint()
	if err != nil {
		return nil, err
	}
	if flags&^vfSupportedMask != 0 || flags&vfVerMask != vfVer1 {
		return nil, dataErrf(raw, 0, nil, "unsupported value flags %x", flags)
	}
	if _, err := d.Uvarint(); err != nil {
		return nil, err
	}
	sum, err := d.FixedUint64()
	if err != nil {
		return nil, err
	}
	payload := d.Buf
	if actual := xxhash.Sum64(payload); actual != sum {
		return nil, dataErrf(raw, d.Off(), nil, "checksum mismatch: stored %016x, computed %016x", sum, actual)
	}

	var r bytes.Reader
	r.Reset(payload)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	dec.UseLooseInterfaceDecoding(true)
	var m map[string]any
	err = dec.Decode(&m)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, dataErrf(raw, d.Off(), err, "failed to decode msgpack record")
	}
	return Record(m), nil
}
