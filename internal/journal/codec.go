package journal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"go.uber.org/zap"

	"storemodel/internal/model"
	"storemodel/internal/storage"
)

const (
	payloadLenBytes = 4
	checksumBytes   = 4
	seqNumBytes     = 8
	outcomeBytes    = 1
	kindBytes       = 1
	countBytes      = 4
	intBytes        = 8
	lenFieldBytes   = 4

	headerBytes = payloadLenBytes + checksumBytes
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

/*
encodeRecord returns the framed form of rec:

	| PayloadLen | CRC32C  | Sequence | Outcome | OpKind | Body     |
	|------------|---------|----------|---------|--------|----------|
	| 4 bytes    | 4 bytes | 8 bytes  | 1 byte  | 1 byte | variable |

The CRC covers the payload, from Sequence to the end of Body. Bodies are

	Transaction: | Count u32 | Count x (Kind u8 | Key u64 | ValueLen u32 | Value) |
	Clear:       | MinKey u64 |
	Prepare:     | Length u64 |

All integers are big endian.
*/
func encodeRecord(rec Record) []byte {
	payload := make([]byte, 0, 64)
	payload = binary.BigEndian.AppendUint64(payload, rec.Sequence)
	payload = append(payload, byte(rec.Outcome), byte(rec.Op.Kind()))

	switch op := rec.Op.(type) {
	case model.Transaction:
		payload = binary.BigEndian.AppendUint32(payload, uint32(len(op.Updates)))
		for _, u := range op.Updates {
			v, _ := u.Value()
			payload = append(payload, byte(u.Kind()))
			payload = binary.BigEndian.AppendUint64(payload, uint64(u.Key()))
			payload = binary.BigEndian.AppendUint32(payload, uint32(len(v)))
			payload = append(payload, v...)
		}
	case model.Clear:
		payload = binary.BigEndian.AppendUint64(payload, uint64(op.MinKey))
	case model.Prepare:
		payload = binary.BigEndian.AppendUint64(payload, uint64(op.Length))
	default:
		panic(fmt.Sprintf("unknown operation %T", op))
	}

	record := make([]byte, 0, headerBytes+len(payload))
	record = binary.BigEndian.AppendUint32(record, uint32(len(payload)))
	record = binary.BigEndian.AppendUint32(record, crc32.Checksum(payload, castagnoli))
	return append(record, payload...)
}

// decodePayload parses the payload of one record, everything after the length
// and CRC prefix.
func decodePayload(payload []byte) (Record, error) {
	d := decoder{buf: payload}
	seq := d.u64()
	outcome := model.Outcome(d.u8())
	kind := model.OpKind(d.u8())
	if d.err != nil {
		return Record{}, d.err
	}
	if outcome > model.OutcomeNoCapacity {
		return Record{}, fmt.Errorf("invalid outcome: %d", outcome)
	}

	var op model.Operation
	switch kind {
	case model.TRANSACTION:
		count := d.u32()
		// Each update takes at least kind + key + length bytes.
		if d.err == nil && int(count) > d.remaining()/(kindBytes+intBytes+lenFieldBytes) {
			return Record{}, fmt.Errorf("update count (%d) exceeds payload bounds", count)
		}
		var ups []model.Update
		for range count {
			ukind := model.UpdateKind(d.u8())
			key := d.int()
			value := d.bytes()
			if d.err != nil {
				break
			}
			switch ukind {
			case model.INSERT:
				ups = append(ups, model.Insert{K: key, V: value})
			case model.REMOVE:
				if len(value) > 0 {
					return Record{}, fmt.Errorf("remove of key %d carries a value", key)
				}
				ups = append(ups, model.Remove{K: key})
			default:
				return Record{}, fmt.Errorf("invalid update type: %d", ukind)
			}
		}
		op = model.Transaction{Updates: ups}
	case model.CLEAR:
		op = model.Clear{MinKey: d.int()}
	case model.PREPARE:
		op = model.Prepare{Length: d.int()}
	default:
		return Record{}, fmt.Errorf("invalid operation type: %d", kind)
	}
	if d.err != nil {
		return Record{}, d.err
	}
	if d.remaining() != 0 {
		return Record{}, fmt.Errorf("%d trailing bytes in payload", d.remaining())
	}
	return Record{Sequence: seq, Op: op, Outcome: outcome}, nil
}

// Load reads every record of the journal at path. It stops at the first
// truncated or corrupted record, which is where a crash may have cut the file,
// and returns the records before it.
func Load(path string, log *zap.Logger) ([]Record, error) {
	records, _, err := load(path, log)
	return records, err
}

// load is Load that also returns the offset just past the last valid record.
func load(path string, log *zap.Logger) ([]Record, int64, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat journal: %w", err)
	}
	size := info.Size()

	records := make([]Record, 0)
	var offset, validEnd int64
	for offset < size {
		n := len(records)
		header, err := storage.ReadAt(f, offset, headerBytes)
		if err != nil {
			return records, validEnd, err
		}
		if len(header) < headerBytes {
			log.Warn("truncated record header", zap.Int("record", n), zap.Int64("offset", offset))
			break
		}
		payloadLen := binary.BigEndian.Uint32(header[:payloadLenBytes])
		wantSum := binary.BigEndian.Uint32(header[payloadLenBytes:])
		offset += headerBytes

		if offset+int64(payloadLen) > size {
			log.Warn("truncated record payload",
				zap.Int("record", n), zap.Int64("offset", offset), zap.Uint32("expected", payloadLen))
			break
		}
		payload, err := storage.ReadAt(f, offset, int(payloadLen))
		if err != nil {
			return records, validEnd, err
		}
		offset += int64(payloadLen)

		if sum := crc32.Checksum(payload, castagnoli); sum != wantSum {
			log.Warn("crc mismatch, stopping at corruption boundary",
				zap.Int("record", n), zap.Uint32("expected", wantSum), zap.Uint32("actual", sum))
			break
		}
		rec, err := decodePayload(payload)
		if err != nil {
			log.Warn("undecodable record, stopping", zap.Int("record", n), zap.Error(err))
			break
		}
		records = append(records, rec)
		validEnd = offset
	}

	log.Debug("loaded journal", zap.Int("records", len(records)), zap.Int64("bytes", size))
	return records, validEnd, nil
}

type decoder struct {
	buf []byte
	pos int
	err error
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.remaining() {
		d.err = fmt.Errorf("field of %d bytes at %d exceeds payload bounds", n, d.pos)
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) u8() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u32() uint32 {
	b := d.take(lenFieldBytes)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(intBytes)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// int reads a u64 that must fit a non-negative int.
func (d *decoder) int() int {
	v := d.u64()
	if d.err == nil && v > uint64(maxInt) {
		d.err = fmt.Errorf("integer %d out of range", v)
	}
	return int(v)
}

func (d *decoder) bytes() []byte {
	n := d.u32()
	b := d.take(int(n))
	if b == nil || n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

const maxInt = int(^uint(0) >> 1)
