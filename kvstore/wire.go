package kvstore

import (
	"encoding/binary"
	"fmt"
)

// EncodeChunk serializes c per the backfill wire format: a tag byte followed
// by the variant's fields, with byte buffers framed as exists:bool then (if
// set) size:i64 followed by size bytes.
func EncodeChunk(c Chunk) []byte {
	var buf []byte
	switch c.Kind {
	case ChunkDeleteRange:
		buf = append(buf, 0)
		buf = append(buf, EncodeRegionKey(c.DeleteRange)...)
	case ChunkDeleteKey:
		buf = append(buf, 1)
		buf = appendBuffer(buf, c.DeleteKey)
		buf = appendU64(buf, c.DeleteKeyRecency)
	case ChunkSetKey:
		buf = append(buf, 2)
		buf = appendBuffer(buf, c.SetKey.Key)
		buf = appendBuffer(buf, c.SetKey.Value)
		buf = appendU32(buf, c.SetKey.Flags)
		buf = appendU32(buf, c.SetKey.Exptime)
		buf = appendU64(buf, c.SetKey.CasOrZero)
		buf = appendU64(buf, c.SetKey.Recency)
	}
	return buf
}

// DecodeChunk is the inverse of EncodeChunk. Any malformed input reports
// ErrCorruption, per spec 7.
func DecodeChunk(data []byte) (Chunk, error) {
	if len(data) < 1 {
		return Chunk{}, fmt.Errorf("%w: empty chunk frame", ErrCorruption)
	}
	tag, rest := data[0], data[1:]
	switch tag {
	case 0:
		r, err := DecodeRegionKey(rest)
		if err != nil {
			return Chunk{}, fmt.Errorf("%w: delete_range: %v", ErrCorruption, err)
		}
		return Chunk{Kind: ChunkDeleteRange, DeleteRange: r}, nil
	case 1:
		key, rest, err := readBuffer(rest)
		if err != nil {
			return Chunk{}, fmt.Errorf("%w: delete_key: %v", ErrCorruption, err)
		}
		recency, rest, err := readU64(rest)
		if err != nil {
			return Chunk{}, fmt.Errorf("%w: delete_key recency: %v", ErrCorruption, err)
		}
		if len(rest) != 0 {
			return Chunk{}, fmt.Errorf("%w: delete_key: trailing bytes", ErrCorruption)
		}
		return Chunk{Kind: ChunkDeleteKey, DeleteKey: key, DeleteKeyRecency: recency}, nil
	case 2:
		key, rest, err := readBuffer(rest)
		if err != nil {
			return Chunk{}, fmt.Errorf("%w: set_key key: %v", ErrCorruption, err)
		}
		value, rest, err := readBuffer(rest)
		if err != nil {
			return Chunk{}, fmt.Errorf("%w: set_key value: %v", ErrCorruption, err)
		}
		flags, rest, err := readU32(rest)
		if err != nil {
			return Chunk{}, fmt.Errorf("%w: set_key flags: %v", ErrCorruption, err)
		}
		exptime, rest, err := readU32(rest)
		if err != nil {
			return Chunk{}, fmt.Errorf("%w: set_key exptime: %v", ErrCorruption, err)
		}
		cas, rest, err := readU64(rest)
		if err != nil {
			return Chunk{}, fmt.Errorf("%w: set_key cas: %v", ErrCorruption, err)
		}
		recency, rest, err := readU64(rest)
		if err != nil {
			return Chunk{}, fmt.Errorf("%w: set_key recency: %v", ErrCorruption, err)
		}
		if len(rest) != 0 {
			return Chunk{}, fmt.Errorf("%w: set_key: trailing bytes", ErrCorruption)
		}
		return Chunk{Kind: ChunkSetKey, SetKey: BackfillAtom{
			Key: key, Value: value, Flags: flags, Exptime: exptime, CasOrZero: cas, Recency: recency,
		}}, nil
	}
	return Chunk{}, fmt.Errorf("%w: unknown chunk tag %d", ErrCorruption, tag)
}

func appendBuffer(buf []byte, b []byte) []byte {
	if b == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = appendI64(buf, int64(len(b)))
	return append(buf, b...)
}

func readBuffer(data []byte) (value []byte, rest []byte, err error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("missing exists byte")
	}
	exists, data := data[0], data[1:]
	if exists == 0 {
		return nil, data, nil
	}
	size, data, err := readI64(data)
	if err != nil {
		return nil, nil, err
	}
	if size < 0 {
		return nil, nil, fmt.Errorf("negative buffer size %d", size)
	}
	if int64(len(data)) < size {
		return nil, nil, fmt.Errorf("truncated buffer: want %d, have %d", size, len(data))
	}
	return data[:size], data[size:], nil
}

func appendI64(buf []byte, v int64) []byte {
	return appendU64(buf, uint64(v))
}

func readI64(data []byte) (int64, []byte, error) {
	v, rest, err := readU64(data)
	return int64(v), rest, err
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func readU64(data []byte) (uint64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("truncated u64")
	}
	return binary.BigEndian.Uint64(data[:8]), data[8:], nil
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func readU32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("truncated u32")
	}
	return binary.BigEndian.Uint32(data[:4]), data[4:], nil
}
