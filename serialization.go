package chunkspan

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT FORMAT
// ═══════════════════════════════════════════════════════════════════════════════
// A snapshot is a zstd stream of:
//
//	magic "CSPN" | version u32 | generation u64 | docs u32 | chunks u32
//	per chunk:  nStored u32 (key, value)*  nLengths u32 (key, u32)*
//	deleted:    roaring bitmap (portable format, length-prefixed)
//	nTerms u32
//	per term:   field, text, nPositions u32, then (Δchunk, offset) uvarints
//
// Strings are u32 length-prefixed. Terms are written in sorted order so that
// two encodings of the same index are byte-identical.
// ═══════════════════════════════════════════════════════════════════════════════

const (
	snapshotMagic   = "CSPN"
	snapshotVersion = 1
)

// Encode serialises the committed index.
func (idx *MemoryIndex) Encode(w io.Writer) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e := &indexEncoder{w: bufio.NewWriter(w)}
	e.writeRaw([]byte(snapshotMagic))
	e.writeU32(snapshotVersion)
	e.writeU64(idx.generation.Load())
	e.writeU32(uint32(idx.docs))
	e.writeU32(uint32(len(idx.stored)))

	for chunk := range idx.stored {
		e.writeStringMap(idx.stored[chunk])
		e.writeIntMap(idx.lengths[chunk])
	}

	var bm bytes.Buffer
	if _, err := idx.deleted.WriteTo(&bm); err != nil {
		return err
	}
	e.writeBytes(bm.Bytes())

	terms := make([]Term, 0, len(idx.Postings))
	for t := range idx.Postings {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Field != terms[j].Field {
			return terms[i].Field < terms[j].Field
		}
		return terms[i].Text < terms[j].Text
	})
	e.writeU32(uint32(len(terms)))
	for _, t := range terms {
		e.encodeTerm(t, idx.Postings[t])
	}

	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

type indexEncoder struct {
	w   *bufio.Writer
	err error
	tmp [binary.MaxVarintLen64]byte
}

func (e *indexEncoder) writeRaw(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *indexEncoder) writeU32(v uint32) {
	binary.LittleEndian.PutUint32(e.tmp[:4], v)
	e.writeRaw(e.tmp[:4])
}

func (e *indexEncoder) writeU64(v uint64) {
	binary.LittleEndian.PutUint64(e.tmp[:8], v)
	e.writeRaw(e.tmp[:8])
}

func (e *indexEncoder) writeUvarint(v uint64) {
	n := binary.PutUvarint(e.tmp[:], v)
	e.writeRaw(e.tmp[:n])
}

func (e *indexEncoder) writeBytes(b []byte) {
	e.writeU32(uint32(len(b)))
	e.writeRaw(b)
}

func (e *indexEncoder) writeString(s string) { e.writeBytes([]byte(s)) }

func (e *indexEncoder) writeStringMap(m map[string]string) {
	keys := sortedKeys(m)
	e.writeU32(uint32(len(keys)))
	for _, k := range keys {
		e.writeString(k)
		e.writeString(m[k])
	}
}

func (e *indexEncoder) writeIntMap(m map[string]int) {
	keys := sortedKeys(m)
	e.writeU32(uint32(len(keys)))
	for _, k := range keys {
		e.writeString(k)
		e.writeU32(uint32(m[k]))
	}
}

// encodeTerm writes a posting list with chunk ids delta-coded.
func (e *indexEncoder) encodeTerm(t Term, list *SkipList) {
	e.writeString(t.Field)
	e.writeString(t.Text)
	e.writeU32(uint32(list.Len()))
	prev := 0
	for n := list.Head.Tower[0]; n != nil; n = n.Tower[0] {
		e.writeUvarint(uint64(n.Key.Chunk - prev))
		e.writeUvarint(uint64(n.Key.Offset))
		prev = n.Key.Chunk
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodeMemoryIndex reads an index written by Encode.
func DecodeMemoryIndex(r io.Reader) (*MemoryIndex, error) {
	d := &indexDecoder{r: bufio.NewReader(r)}
	magic := d.readRaw(len(snapshotMagic))
	if d.err == nil && string(magic) != snapshotMagic {
		return nil, corruption("bad snapshot magic %q", magic)
	}
	if v := d.readU32(); d.err == nil && v != snapshotVersion {
		return nil, corruption("unsupported snapshot version %d", v)
	}

	idx := NewMemoryIndex()
	generation := d.readU64()
	idx.docs = int(d.readU32())
	chunks := int(d.readU32())
	if d.err != nil {
		return nil, d.fail()
	}
	idx.stored = make([]map[string]string, chunks)
	idx.lengths = make([]map[string]int, chunks)
	for chunk := 0; chunk < chunks && d.err == nil; chunk++ {
		idx.stored[chunk] = d.readStringMap()
		idx.lengths[chunk] = d.readIntMap()
	}

	if bm := d.readBytes(); d.err == nil {
		if _, err := idx.deleted.ReadFrom(bytes.NewReader(bm)); err != nil {
			return nil, newQueryError(ErrIndexCorruption, err, "decoding deleted chunks")
		}
	}

	nTerms := int(d.readU32())
	for i := 0; i < nTerms && d.err == nil; i++ {
		d.decodeTerm(idx)
	}
	if d.err != nil {
		return nil, d.fail()
	}

	for field, terms := range idx.fieldTerms {
		sort.Strings(terms)
		idx.fieldTerms[field] = terms
	}
	idx.generation.Store(generation)
	return idx, nil
}

type indexDecoder struct {
	r   *bufio.Reader
	err error
}

func (d *indexDecoder) fail() error {
	return newQueryError(ErrIndexCorruption, d.err, "truncated or malformed snapshot")
}

func (d *indexDecoder) readRaw(n int) []byte {
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	_, d.err = io.ReadFull(d.r, b)
	return b
}

func (d *indexDecoder) readU32() uint32 {
	if b := d.readRaw(4); d.err == nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *indexDecoder) readU64() uint64 {
	if b := d.readRaw(8); d.err == nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *indexDecoder) readUvarint() uint64 {
	if d.err != nil {
		return 0
	}
	var v uint64
	v, d.err = binary.ReadUvarint(d.r)
	return v
}

func (d *indexDecoder) readBytes() []byte {
	n := d.readU32()
	if d.err == nil && n > 1<<30 {
		d.err = fmt.Errorf("length %d out of range", n)
	}
	return d.readRaw(int(n))
}

func (d *indexDecoder) readString() string { return string(d.readBytes()) }

func (d *indexDecoder) readStringMap() map[string]string {
	n := int(d.readU32())
	m := make(map[string]string, n)
	for i := 0; i < n && d.err == nil; i++ {
		k := d.readString()
		m[k] = d.readString()
	}
	return m
}

func (d *indexDecoder) readIntMap() map[string]int {
	n := int(d.readU32())
	m := make(map[string]int, n)
	for i := 0; i < n && d.err == nil; i++ {
		k := d.readString()
		m[k] = int(d.readU32())
	}
	return m
}

func (d *indexDecoder) decodeTerm(idx *MemoryIndex) {
	t := Term{Field: d.readString(), Text: d.readString()}
	n := int(d.readU32())
	chunk := 0
	for i := 0; i < n && d.err == nil; i++ {
		chunk += int(d.readUvarint())
		offset := int(d.readUvarint())
		if d.err == nil {
			idx.indexToken(t, chunk, offset)
		}
	}
}

// Save writes a zstd-compressed snapshot to path, replacing it atomically.
func (idx *MemoryIndex) Save(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	if err := idx.Encode(zw); err != nil {
		zw.Close()
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadMemoryIndex reads a snapshot written by Save.
func LoadMemoryIndex(path string) (*MemoryIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, newQueryError(ErrIndexCorruption, err, "opening snapshot %s", path)
	}
	defer zr.Close()

	idx, err := DecodeMemoryIndex(zr)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return idx, nil
}
