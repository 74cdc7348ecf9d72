package kvstore

import (
	"encoding/binary"
	"errors"

	"github.com/hupe1980/mediacache/mediatype"
)

// Framed record layout, shared by the local and remote backends:
//
//	[0:4]   magic "MCR1"
//	[4]     format version
//	[5]     media kind
//	[6]     compression type
//	[7:15]  created-at (unix millis, little endian)
//	[15:23] last-accessed (unix millis, little endian)
//	[23:27] key length
//	[27:..] key bytes
//	[..:..] compressed payload block (see compress.go)
var recordMagic = [4]byte{'M', 'C', 'R', '1'}

const (
	recordVersion    = 1
	recordHeaderSize = 27

	// MetaPrefixSize is a safe range-read size for decoding record metadata
	// without fetching the payload. Covers the fixed header plus any sane URL.
	MetaPrefixSize = 4096
)

// ErrShortBuffer is returned by DecodeRecordMeta when the buffer does not
// cover the full header and key.
var ErrShortBuffer = errors.New("kvstore: buffer too short for record header")

var errBadRecord = errors.New("kvstore: malformed record")

// EncodeRecord frames a record for durable storage, compressing the payload
// with the given codec.
func EncodeRecord(rec Record, c Compression) ([]byte, error) {
	block, err := compressBlock(rec.Data, c)
	if err != nil {
		return nil, err
	}

	key := []byte(rec.Key)
	buf := make([]byte, recordHeaderSize+len(key)+len(block))

	copy(buf[0:4], recordMagic[:])
	buf[4] = recordVersion
	buf[5] = byte(rec.Kind)
	buf[6] = byte(c)
	binary.LittleEndian.PutUint64(buf[7:], uint64(rec.CreatedAt))
	binary.LittleEndian.PutUint64(buf[15:], uint64(rec.LastAccessed))
	binary.LittleEndian.PutUint32(buf[23:], uint32(len(key)))
	copy(buf[recordHeaderSize:], key)
	copy(buf[recordHeaderSize+len(key):], block)

	return buf, nil
}

// DecodeRecord parses a full framed record, decompressing the payload.
func DecodeRecord(buf []byte) (Record, error) {
	rec, keyEnd, err := decodeHeader(buf)
	if err != nil {
		return Record{}, err
	}

	data, err := decompressBlock(buf[keyEnd:], Compression(buf[6]))
	if err != nil {
		return Record{}, err
	}
	rec.Data = data
	return rec, nil
}

// DecodeRecordMeta parses only the header and key of a framed record, leaving
// Data nil. Useful for index scans over range reads. Returns ErrShortBuffer
// when buf does not cover the key.
func DecodeRecordMeta(buf []byte) (Record, error) {
	rec, _, err := decodeHeader(buf)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func decodeHeader(buf []byte) (Record, int, error) {
	if len(buf) < recordHeaderSize {
		return Record{}, 0, ErrShortBuffer
	}
	if [4]byte(buf[0:4]) != recordMagic {
		return Record{}, 0, errBadRecord
	}
	if buf[4] != recordVersion {
		return Record{}, 0, errBadRecord
	}

	keyLen := int(binary.LittleEndian.Uint32(buf[23:]))
	keyEnd := recordHeaderSize + keyLen
	if len(buf) < keyEnd {
		return Record{}, 0, ErrShortBuffer
	}

	return Record{
		Key:          string(buf[recordHeaderSize:keyEnd]),
		Kind:         mediatype.Kind(buf[5]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(buf[7:])),
		LastAccessed: int64(binary.LittleEndian.Uint64(buf[15:])),
	}, keyEnd, nil
}
