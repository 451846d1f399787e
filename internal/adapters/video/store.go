package video

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

// Frame buffer kinds.
const (
	BufferMemory = "memory"
	BufferDisk   = "disk"
)

// FrameStore keeps decoded frames addressable by index until peak frames are
// known. Put is called from the single decode pass; Get may be called
// concurrently by workers and returns a copy owned by the caller.
type FrameStore interface {
	Put(index int, frame gocv.Mat) error
	Get(index int) (gocv.Mat, error)
	Len() int
	Close() error
}

// NewFrameStore creates a store of the given kind. Disk stores spill into a
// fresh directory under dir (the system temp dir when empty).
func NewFrameStore(kind, dir string) (FrameStore, error) {
	switch kind {
	case BufferMemory, "":
		return NewMemoryStore(), nil
	case BufferDisk:
		return NewDiskStore(dir)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuffer, kind)
	}
}

// MemoryStore holds frames in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	frames map[int]gocv.Mat
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{frames: make(map[int]gocv.Mat)}
}

// Put takes ownership of frame. A frame already stored at index is replaced.
func (s *MemoryStore) Put(index int, frame gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if old, ok := s.frames[index]; ok {
		old.Close()
	}
	s.frames[index] = frame
	return nil
}

// Get returns a copy of the frame at index.
func (s *MemoryStore) Get(index int) (gocv.Mat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return gocv.NewMat(), ErrStoreClosed
	}
	f, ok := s.frames[index]
	if !ok {
		return gocv.NewMat(), fmt.Errorf("%w: %d", ErrFrameNotFound, index)
	}
	return f.Clone(), nil
}

// Retain drops every frame whose index is not in keep.
func (s *MemoryStore) Retain(keep []int) {
	want := make(map[int]struct{}, len(keep))
	for _, k := range keep {
		want[k] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.frames {
		if _, ok := want[i]; !ok {
			f.Close()
			delete(s.frames, i)
		}
	}
}

// Len returns the number of stored frames.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Close releases every frame.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	for i, f := range s.frames {
		f.Close()
		delete(s.frames, i)
	}
	s.closed = true
	return nil
}

// DiskStore spills frames to lossless PNG files.
type DiskStore struct {
	mu     sync.RWMutex
	dir    string
	count  int
	closed bool
}

// NewDiskStore creates a spill directory under parent.
func NewDiskStore(parent string) (*DiskStore, error) {
	dir, err := os.MkdirTemp(parent, "hitscore-frames-")
	if err != nil {
		return nil, fmt.Errorf("create frame spill dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the spill directory.
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) path(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("frame_%08d.png", index))
}

// Put writes frame to disk and closes it.
func (s *DiskStore) Put(index int, frame gocv.Mat) error {
	defer frame.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	p := s.path(index)
	_, statErr := os.Stat(p)
	if ok := gocv.IMWrite(p, frame); !ok {
		return fmt.Errorf("%w: frame %d to %s", ErrWriteFrame, index, p)
	}
	if os.IsNotExist(statErr) {
		s.count++
	}
	return nil
}

// Get reads the frame at index back from disk.
func (s *DiskStore) Get(index int) (gocv.Mat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return gocv.NewMat(), ErrStoreClosed
	}

	p := s.path(index)
	if _, err := os.Stat(p); err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %d", ErrFrameNotFound, index)
	}
	m := gocv.IMRead(p, gocv.IMReadColor)
	if m.Empty() {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %s", ErrReadFrame, p)
	}
	return m, nil
}

// Len returns the number of frames written.
func (s *DiskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Close removes the spill directory.
func (s *DiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.dir)
}

var (
	_ FrameStore = (*MemoryStore)(nil)
	_ FrameStore = (*DiskStore)(nil)
)
