// Package shard implements a single n-gram inverted index shard: a
// memory-mapped file pairing a fixed-size header dispatch table with an
// append-only heap of posting-list blocks.
package shard

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/binacle-dev/binacle/errs"
	"github.com/binacle-dev/binacle/internal/endian"
	"github.com/binacle-dev/binacle/internal/options"
	"github.com/binacle-dev/binacle/varint"
)

// State is a shard's position in its Creating -> ActiveRW|ActiveRO ->
// Sealed -> Closed lifecycle.
type State int

const (
	StateCreating State = iota
	StateActiveRW
	StateActiveRO
	StateSealed
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateCreating:
		return "creating"
	case StateActiveRW:
		return "active-rw"
	case StateActiveRO:
		return "active-ro"
	case StateSealed:
		return "sealed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Shard is one on-disk, memory-mapped n-gram index file plus its JSON
// sidecar metadata.
type Shard struct {
	mu sync.RWMutex

	path string
	file *os.File
	data []byte

	size     uint64 // logical bump-allocator cursor, header table .. end of committed data
	capacity uint64 // length of the current mmap (>= size)

	offsetSize int
	alignment  int
	ngramSize  int
	headerSize int

	writable bool
	state    State

	nbFile    uint32
	lastID    uint32
	totalSize uint64 // sum of inserted file sizes, for AverageSize bookkeeping
}

// Create makes a new, empty shard file at path and returns it open for
// writing.
func Create(path string, opts ...Option) (*Shard, error) {
	if !endian.IsNativeLittleEndian() {
		return nil, fmt.Errorf("%w: shard format is host-native little-endian only", errs.ErrUnsupportedHost)
	}

	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrAlreadyExists, path)
	}

	headerSize := headerTableSize(cfg.offsetSize, cfg.alignment, cfg.ngramSize)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	if err := flockExclusive(file); err != nil {
		file.Close()
		os.Remove(path)

		return nil, err
	}

	if err := file.Truncate(int64(headerSize)); err != nil {
		file.Close()
		os.Remove(path)

		return nil, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	data, err := mmapFile(file, headerSize, true)
	if err != nil {
		file.Close()
		os.Remove(path)

		return nil, err
	}

	s := &Shard{
		path:       path,
		file:       file,
		data:       data,
		size:       uint64(headerSize),
		capacity:   uint64(headerSize),
		offsetSize: cfg.offsetSize,
		alignment:  cfg.alignment,
		ngramSize:  cfg.ngramSize,
		headerSize: headerSize,
		writable:   true,
		state:      StateActiveRW,
	}

	if err := writeMeta(path, s.metaSnapshot()); err != nil {
		s.Close()

		return nil, err
	}

	return s, nil
}

// OpenWrite opens an existing shard for reading and writing.
func OpenWrite(path string) (*Shard, error) {
	return open(path, true)
}

// OpenRead opens an existing shard for read-only queries.
func OpenRead(path string) (*Shard, error) {
	return open(path, false)
}

func open(path string, writable bool) (*Shard, error) {
	if !endian.IsNativeLittleEndian() {
		return nil, fmt.Errorf("%w: shard format is host-native little-endian only", errs.ErrUnsupportedHost)
	}

	m, err := readMeta(path)
	if err != nil {
		return nil, err
	}

	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, path)
		}

		return nil, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	if writable {
		err = flockExclusive(file)
	} else {
		err = flockShared(file)
	}
	if err != nil {
		file.Close()

		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()

		return nil, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	data, err := mmapFile(file, int(info.Size()), writable)
	if err != nil {
		file.Close()

		return nil, err
	}

	headerSize := headerTableSize(int(m.OffsetSize), int(m.Alignment), int(m.NgramSize))
	if headerSize > len(data) {
		munmapFile(data)
		file.Close()

		return nil, fmt.Errorf("%w: header table (%d bytes) does not fit the mapped file (%d bytes)", errs.ErrInvalidHeaderSize, headerSize, len(data))
	}

	if got := digestHeaderTable(data, headerSize); m.Digest != 0 && got != m.Digest {
		munmapFile(data)
		file.Close()

		return nil, fmt.Errorf("%w: header table digest mismatch", errs.ErrInvalidMetadata)
	}

	state := StateActiveRO
	if writable {
		state = StateActiveRW
	}

	return &Shard{
		path:       path,
		file:       file,
		data:       data,
		size:       m.Size,
		capacity:   uint64(info.Size()),
		offsetSize: int(m.OffsetSize),
		alignment:  int(m.Alignment),
		ngramSize:  int(m.NgramSize),
		headerSize: headerSize,
		writable:   writable,
		state:      state,
		nbFile:     m.NbFile,
		lastID:     m.LastID,
		totalSize:  uint64(m.AverageSize * float64(m.NbFile)),
	}, nil
}

func (s *Shard) metaSnapshot() Meta {
	return Meta{
		Size:        s.size,
		OffsetSize:  uint8(s.offsetSize),
		Alignment:   uint8(s.alignment),
		NgramSize:   uint8(s.ngramSize),
		NbFile:      s.nbFile,
		LastID:      s.lastID,
		AverageSize: s.averageSizeLocked(),
		Digest:      digestHeaderTable(s.data, s.headerSize),
	}
}

func (s *Shard) averageSizeLocked() float64 {
	if s.nbFile == 0 {
		return 0
	}

	return float64(s.totalSize) / float64(s.nbFile)
}

// Path returns the shard's backing file path.
func (s *Shard) Path() string { return s.path }

// State returns the shard's current lifecycle state.
func (s *Shard) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// NbFile returns the number of files inserted so far.
func (s *Shard) NbFile() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.nbFile
}

// LastID returns the highest file id assigned so far, or 0 if empty.
func (s *Shard) LastID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastID
}

// Size returns the logical number of bytes committed to the shard
// (header table plus every allocated block), independent of the
// mmap'd capacity reserved ahead of it.
func (s *Shard) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.size
}

// Close persists metadata (for a writable shard) and releases the
// shard's mmap, lock and file handle. Close is idempotent.
func (s *Shard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}

	if s.writable {
		if err := writeMeta(s.path, s.metaSnapshot()); err != nil {
			return err
		}
	}

	if err := munmapFile(s.data); err != nil {
		return err
	}
	s.data = nil

	if err := funlock(s.file); err != nil {
		return err
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	s.state = StateClosed

	return nil
}

// Seal truncates the shard's backing file down to its committed size,
// drops write access and transitions it to StateSealed. A sealed shard
// is immutable and can only be reopened with OpenRead.
func (s *Shard) Seal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActiveRW {
		return fmt.Errorf("%w: seal requires active-rw, got %s", errs.ErrShardSealed, s.state)
	}

	if err := munmapFile(s.data); err != nil {
		return err
	}

	if err := s.file.Truncate(int64(s.size)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	data, err := mmapFile(s.file, int(s.size), false)
	if err != nil {
		return err
	}

	s.data = data
	s.capacity = s.size
	s.writable = false
	s.state = StateSealed

	return writeMeta(s.path, s.metaSnapshot())
}

func (s *Shard) readHeaderEntry(slotIdx uint32) uint64 {
	off := uint64(slotIdx) * uint64(s.offsetSize)

	return readUintN(s.data[off:off+uint64(s.offsetSize)], s.offsetSize)
}

func (s *Shard) writeHeaderEntry(slotIdx uint32, v uint64) {
	off := uint64(slotIdx) * uint64(s.offsetSize)
	putUintN(s.data[off:off+uint64(s.offsetSize)], s.offsetSize, v)
}

// InsertNgram records that file id contains ngram, appending to (or
// extending) that n-gram's posting-list chain directly against the
// mapped bytes.
func (s *Shard) InsertNgram(ngram uint32, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertNgramLocked(ngram, id)
}

func (s *Shard) insertNgramLocked(ngram uint32, id uint32) error {
	if !s.writable {
		return errs.ErrNotWritable
	}

	prefixSize := blockPrefixSize(s.offsetSize)
	slotIdx := reduceNgram(ngram, s.ngramSize)
	stored := s.readHeaderEntry(slotIdx)

	// step 2: no chain yet, allocate the first block at 2^alignment.
	if stored == 0 {
		off, err := s.alloc(uint8(s.alignment))
		if err != nil {
			return err
		}

		p := blockPrefix{sizeLog: uint8(s.alignment), nbElem: 0, nbBytes: 0, prev: 0}
		p.writeTo(s.data[off:off+uint64(prefixSize)], s.offsetSize)

		stored = off >> uint(s.alignment)
		s.writeHeaderEntry(slotIdx, stored)
	}

	blockOff := stored << uint(s.alignment)
	prefix, err := readBlockPrefix(s.data, blockOff, s.offsetSize)
	if err != nil {
		return err
	}
	blockBytes := uint64(1) << prefix.sizeLog

	// step 3: headroom check, pessimistically assuming a worst-case
	// 4-byte packed delta plus a fresh hot tail.
	needed := uint64(prefix.nbBytes) + hotTailLen + uint64(prefixSize) + varint.MaxWidth
	if needed > blockBytes {
		newSizeLog := prefix.sizeLog + 1
		if newSizeLog > maxBlockSizeLog {
			newSizeLog = maxBlockSizeLog
		}

		newOff, err := s.alloc(newSizeLog)
		if err != nil {
			return err
		}

		newPrefix := blockPrefix{sizeLog: newSizeLog, nbElem: 0, nbBytes: 0, prev: stored}
		newPrefix.writeTo(s.data[newOff:newOff+uint64(prefixSize)], s.offsetSize)

		stored = newOff >> uint(s.alignment)
		s.writeHeaderEntry(slotIdx, stored)

		blockOff = newOff
		prefix = newPrefix
		blockBytes = uint64(1) << newSizeLog
	}

	payloadOff := blockOff + uint64(prefixSize)

	// step 4: first element of this block, stored raw.
	if prefix.nbElem == 0 {
		putUintN(s.data[payloadOff:payloadOff+rawIDSize], rawIDSize, uint64(id))
		prefix.nbBytes = rawIDSize
		prefix.nbElem = 1
		prefix.writeTo(s.data[blockOff:blockOff+uint64(prefixSize)], s.offsetSize)

		return nil
	}

	// step 5: the hot tail is the raw 4 bytes at payload + nb_bytes - 4.
	hotTailOff := payloadOff + uint64(prefix.nbBytes) - hotTailLen
	lastID := uint32(readUintN(s.data[hotTailOff:hotTailOff+hotTailLen], hotTailLen))

	if id == lastID {
		return nil // consecutive duplicate id for this n-gram, no-op.
	}

	delta := id - lastID
	encoded, err := varint.Encode(delta)
	if err != nil {
		return err
	}

	writeOff := hotTailOff
	if prefix.nbElem == 1 {
		// the raw first element occupies these 4 bytes; keep it
		// intact by writing the packed delta just past it instead.
		writeOff += hotTailLen
		prefix.nbBytes += hotTailLen
	}

	copy(s.data[writeOff:writeOff+uint64(len(encoded))], encoded)
	putUintN(s.data[writeOff+uint64(len(encoded)):writeOff+uint64(len(encoded))+hotTailLen], hotTailLen, uint64(id))

	prefix.nbBytes += uint16(len(encoded))
	prefix.nbElem++

	// step 6: persist the updated prefix.
	prefix.writeTo(s.data[blockOff:blockOff+uint64(prefixSize)], s.offsetSize)

	return nil
}

// InsertFile indexes every 4-byte window of data under the caller-supplied
// id, which must be unique within the shard. A repeated window within the
// same file is a consecutive duplicate from insertNgramLocked's point of
// view and collapses to a no-op, so no separate de-duplication is needed
// here.
func (s *Shard) InsertFile(id uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writable {
		return errs.ErrNotWritable
	}

	for _, ng := range ngramsOf(data) {
		if err := s.insertNgramLocked(ng, id); err != nil {
			return err
		}
	}

	if id > s.lastID {
		s.lastID = id
	}
	s.nbFile++
	s.totalSize += uint64(len(data))

	return nil
}

func (s *Shard) decodeBlock(blockOff uint64) ([]uint32, error) {
	prefixSize := blockPrefixSize(s.offsetSize)
	prefix, err := readBlockPrefix(s.data, blockOff, s.offsetSize)
	if err != nil {
		return nil, err
	}

	payloadEnd := blockOff + uint64(prefixSize) + uint64(prefix.nbBytes)
	if payloadEnd > uint64(len(s.data)) {
		return nil, fmt.Errorf("%w: block payload at offset %d runs past mapped region", errs.ErrInvalidBlockPrefix, blockOff)
	}
	payload := s.data[blockOff+uint64(prefixSize) : payloadEnd]

	// a block allocated but never written to (e.g. a first block too small
	// for the headroom check) holds no ids.
	if prefix.nbElem == 0 {
		return nil, nil
	}

	ids := make([]uint32, 0, prefix.nbElem)
	last := uint32(readUintN(payload[:rawIDSize], rawIDSize))
	ids = append(ids, last)

	pos := rawIDSize
	for uint16(len(ids)) < prefix.nbElem {
		delta, n, err := varint.Unpack(payload[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		last += delta
		ids = append(ids, last)
	}

	return ids, nil
}

// chainOffsets walks a posting list's block chain from newest to oldest
// and returns the visited block offsets in that order.
func (s *Shard) chainOffsets(slotIdx uint32) ([]uint64, error) {
	stored := s.readHeaderEntry(slotIdx)
	if stored == 0 {
		return nil, nil
	}

	var offsets []uint64
	for stored != 0 {
		blockOff := stored << uint(s.alignment)
		offsets = append(offsets, blockOff)

		prefix, err := readBlockPrefix(s.data, blockOff, s.offsetSize)
		if err != nil {
			return nil, err
		}
		stored = prefix.prev
	}

	return offsets, nil
}

// GetIDsByNgram returns every file id whose content contains ngram, in
// ascending order. Returns an empty slice if ngram was never inserted.
func (s *Shard) GetIDsByNgram(ngram uint32) ([]uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getIDsByNgramLocked(ngram)
}

func (s *Shard) getIDsByNgramLocked(ngram uint32) ([]uint32, error) {
	slotIdx := reduceNgram(ngram, s.ngramSize)
	offsets, err := s.chainOffsets(slotIdx)
	if err != nil {
		return nil, err
	}

	ids := make([]uint32, 0)
	for i := len(offsets) - 1; i >= 0; i-- {
		blockIDs, err := s.decodeBlock(offsets[i])
		if err != nil {
			return nil, err
		}
		ids = append(ids, blockIDs...)
	}

	return ids, nil
}

// GetIDsSizeByNgram returns the number of ids indexed under ngram
// without decoding the posting list's varints. Used to order
// intersections by ascending posting-list cardinality.
func (s *Shard) GetIDsSizeByNgram(ngram uint32) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getIDsSizeByNgramLocked(ngram)
}

func (s *Shard) getIDsSizeByNgramLocked(ngram uint32) (int, error) {
	slotIdx := reduceNgram(ngram, s.ngramSize)

	offsets, err := s.chainOffsets(slotIdx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, off := range offsets {
		prefix, err := readBlockPrefix(s.data, off, s.offsetSize)
		if err != nil {
			return 0, err
		}
		total += int(prefix.nbElem)
	}

	return total, nil
}

// IntersectIDsByNgram intersects set with ngram's posting list, walking
// the chain block by block and accumulating matches, exiting early once
// the accumulated result already equals set.
func (s *Shard) IntersectIDsByNgram(set []uint32, ngram uint32) ([]uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.intersectIDsByNgramLocked(set, ngram)
}

func (s *Shard) intersectIDsByNgramLocked(set []uint32, ngram uint32) ([]uint32, error) {
	if len(set) == 0 {
		return nil, nil
	}

	slotIdx := reduceNgram(ngram, s.ngramSize)

	offsets, err := s.chainOffsets(slotIdx)
	if err != nil {
		return nil, err
	}

	matched := make(map[uint32]struct{}, len(set))
	for _, off := range offsets {
		blockIDs, err := s.decodeBlock(off)
		if err != nil {
			return nil, err
		}
		for _, id := range intersectTwoSorted(set, blockIDs) {
			matched[id] = struct{}{}
		}

		if len(matched) == len(set) {
			break
		}
	}

	out := make([]uint32, 0, len(matched))
	for _, id := range set {
		if _, ok := matched[id]; ok {
			out = append(out, id)
		}
	}

	return out, nil
}

// SearchNgrams returns the intersection of the posting lists of every
// ngram given: the set of file ids whose content contains all of them.
// Ngrams are visited in ascending posting-list size order so the
// smallest candidate set is established first.
func (s *Shard) SearchNgrams(ngrams []uint32) ([]uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ngrams) == 0 {
		return nil, nil
	}

	ordered := append([]uint32(nil), ngrams...)
	sizes := make(map[uint32]int, len(ordered))
	for _, ng := range ordered {
		size, err := s.getIDsSizeByNgramLocked(ng)
		if err != nil {
			return nil, err
		}
		sizes[ng] = size
	}
	sort.Slice(ordered, func(i, j int) bool { return sizes[ordered[i]] < sizes[ordered[j]] })

	result, err := s.getIDsByNgramLocked(ordered[0])
	if err != nil {
		return nil, err
	}
	for _, ng := range ordered[1:] {
		if len(result) == 0 {
			break
		}
		result, err = s.intersectIDsByNgramLocked(result, ng)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Search returns the ids of files that may contain pattern as a
// substring: the intersection of the posting lists of every distinct
// 4-byte window of pattern. Like the underlying n-gram index, Search is
// a candidate filter, not a verifier — callers that need certainty
// should re-scan the candidate files for pattern itself.
func (s *Shard) Search(pattern []byte) ([]uint32, error) {
	if len(pattern) < NgramLen {
		return nil, fmt.Errorf("%w: pattern must be at least %d bytes", errs.ErrPatternTooShort, NgramLen)
	}

	return s.SearchNgrams(dedupUint32(ngramsOf(pattern)))
}

func dedupUint32(in []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(in))
	out := make([]uint32, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}

func intersectTwoSorted(a, b []uint32) []uint32 {
	out := make([]uint32, 0, min(len(a), len(b)))

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	return out
}
