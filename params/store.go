package params

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Region is the non-volatile memory holding parameter blocks
type Region interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64
}

// Store keeps the drive parameters in a region split into blocks. Saves
// rotate through the blocks so the newest valid block survives an
// interrupted write.
type Store struct {
	region Region
	slots  int

	mu      sync.Mutex
	current int // slot of the newest block, -1 if none
	seq     uint8
}

// NewStore scans region for the newest valid block
func NewStore(region Region) (*Store, error) {
	slots := int(region.Size() / BlockSize)
	if slots < 2 {
		return nil, errors.Errorf("region of %d bytes holds fewer than two blocks", region.Size())
	}
	s := &Store{region: region, slots: slots, current: -1}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) scan() error {
	var blk [BlockSize]byte
	for i := 0; i < s.slots; i++ {
		if _, err := s.region.ReadAt(blk[:], int64(i)*BlockSize); err != nil {
			return errors.Wrapf(err, "read block %d", i)
		}
		_, seq, err := DecodeBlock(blk[:])
		if err != nil {
			continue
		}
		if s.current < 0 || newer(seq, s.seq) {
			s.current, s.seq = i, seq
		}
	}
	return nil
}

// Load returns the newest saved parameters, or ErrNoBlock
func (s *Store) Load() (DriveParameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 {
		return DriveParameters{}, ErrNoBlock
	}
	var blk [BlockSize]byte
	if _, err := s.region.ReadAt(blk[:], int64(s.current)*BlockSize); err != nil {
		return DriveParameters{}, errors.Wrap(err, "read parameters")
	}
	p, _, err := DecodeBlock(blk[:])
	return p, err
}

// Save writes p into the block after the newest one
func (s *Store) Save(p *DriveParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, seq := 0, uint8(0)
	if s.current >= 0 {
		slot, seq = (s.current+1)%s.slots, s.seq+1
	}
	blk, err := EncodeBlock(p, seq)
	if err != nil {
		return err
	}
	if _, err := s.region.WriteAt(blk[:], int64(slot)*BlockSize); err != nil {
		return errors.Wrapf(err, "write block %d", slot)
	}
	s.current, s.seq = slot, seq
	return nil
}

// MemRegion is a region in RAM, erased to 0xff
type MemRegion struct {
	buf []byte
}

func NewMemRegion(size int) *MemRegion {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0xff
	}
	return &MemRegion{buf: buf}
}

func (m *MemRegion) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, errors.New("read outside region")
	}
	return copy(p, m.buf[off:]), nil
}

func (m *MemRegion) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, errors.New("write outside region")
	}
	return copy(m.buf[off:], p), nil
}

func (m *MemRegion) Size() int64 { return int64(len(m.buf)) }

// FileRegion is a region backed by a file of fixed size
type FileRegion struct {
	f    *os.File
	size int64
}

// OpenFileRegion opens or creates path as a region of size bytes. A new
// or short file is padded with erased bytes.
func OpenFileRegion(path string, size int64) (*FileRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open parameter file")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat parameter file")
	}
	if pad := size - st.Size(); pad > 0 {
		erased := make([]byte, pad)
		for i := range erased {
			erased[i] = 0xff
		}
		if _, err := f.WriteAt(erased, st.Size()); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "erase parameter file")
		}
	}
	return &FileRegion{f: f, size: size}, nil
}

func (r *FileRegion) ReadAt(p []byte, off int64) (int, error) { return r.f.ReadAt(p, off) }

func (r *FileRegion) WriteAt(p []byte, off int64) (int, error) {
	n, err := r.f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	return n, r.f.Sync()
}

func (r *FileRegion) Size() int64 { return r.size }

func (r *FileRegion) Close() error { return r.f.Close() }
