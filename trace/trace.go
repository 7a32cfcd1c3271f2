package trace

import (
	"bufio"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/outofforest/photon"
	"github.com/outofforest/reuse/types"
)

const (
	// Magic identifies trace files.
	Magic uint32 = 0x31445254 // "TRD1"

	// Version is the version of the file format.
	Version uint32 = 1

	// HeaderSize is the size of the file header.
	HeaderSize = 16

	// RecordSize is the size of one event record.
	RecordSize = 24

	// ChecksumSize is the size of the checksum stored at the end of the file.
	ChecksumSize = 32
)

// Header is the header of trace file.
type Header struct {
	Magic   uint32
	Version uint32
	Count   uint64
}

// record mirrors the memory layout of types.Event with padding set explicitly, so written files are deterministic.
type record struct {
	Address     uint64
	SourceScope uint32
	ID          uint32
	Image       uint16
	Type        types.EventType
	Edge        types.EdgeKind
	Aux         uint8
	_           [3]byte
}

// Open opens trace file for reading. The file is mapped into memory and its checksum is verified.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.WithStack(err)
	}
	size := info.Size()
	if size < HeaderSize+ChecksumSize {
		_ = file.Close()
		return nil, errors.Errorf("file %s is too short to be a trace file", path)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "mapping file %s failed", path)
	}

	r := &Reader{
		file: file,
		data: data,
	}
	if err := r.verify(); err != nil {
		_ = r.Close()
		return nil, errors.WithMessagef(err, "invalid trace file %s", path)
	}
	return r, nil
}

// Reader reads events from the trace file.
type Reader struct {
	file   *os.File
	data   []byte
	header Header
}

// Count returns the number of events stored in the file.
func (r *Reader) Count() uint64 {
	return r.header.Count
}

// Events returns all the events stored in the file. The slice is valid until the reader is closed.
func (r *Reader) Events() []types.Event {
	if r.header.Count == 0 {
		return nil
	}
	return photon.SliceFromPointer[types.Event](unsafe.Pointer(&r.data[HeaderSize]), int(r.header.Count))
}

// Batches iterates over events in batches of the requested size. The last batch might be shorter.
func (r *Reader) Batches(size int) func(func([]types.Event) bool) {
	return func(yield func([]types.Event) bool) {
		events := r.Events()
		for len(events) > 0 {
			n := min(size, len(events))
			if !yield(events[:n]) {
				return
			}
			events = events[n:]
		}
	}
}

// Close unmaps and closes the file.
func (r *Reader) Close() error {
	err := unix.Munmap(r.data)
	if err2 := r.file.Close(); err == nil {
		err = err2
	}
	return errors.WithStack(err)
}

func (r *Reader) verify() error {
	r.header = *photon.FromBytes[Header](r.data[:HeaderSize])
	if r.header.Magic != Magic {
		return errors.Errorf("unexpected magic number 0x%x", r.header.Magic)
	}
	if r.header.Version != Version {
		return errors.Errorf("unsupported version %d", r.header.Version)
	}

	recordsSize := uint64(len(r.data)) - HeaderSize - ChecksumSize
	if recordsSize%RecordSize != 0 || recordsSize/RecordSize != r.header.Count {
		return errors.Errorf("header declares %d events but file contains %d bytes of records", r.header.Count,
			recordsSize)
	}

	records := r.data[HeaderSize : HeaderSize+recordsSize]
	checksum := blake3.Sum256(records)
	if string(checksum[:]) != string(r.data[HeaderSize+recordsSize:]) {
		return errors.New("checksum mismatch")
	}
	return nil
}

// Create creates new trace file.
func Create(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	w := &Writer{
		file:   file,
		buf:    bufio.NewWriter(file),
		hasher: blake3.New(),
	}
	header := Header{}
	if _, err := w.buf.Write(photon.NewFromValue(&header).B); err != nil {
		_ = file.Close()
		return nil, errors.WithStack(err)
	}
	return w, nil
}

// Writer writes events to trace file.
type Writer struct {
	file   *os.File
	buf    *bufio.Writer
	hasher *blake3.Hasher
	count  uint64
}

// Write appends events to the file.
func (w *Writer) Write(events ...types.Event) error {
	for _, e := range events {
		rec := record{
			Address:     e.Address,
			SourceScope: e.SourceScope,
			ID:          e.ID,
			Image:       e.Image,
			Type:        e.Type,
			Edge:        e.Edge,
			Aux:         e.Aux,
		}
		b := photon.NewFromValue(&rec).B
		if _, err := w.buf.Write(b); err != nil {
			return errors.WithStack(err)
		}
		if _, err := w.hasher.Write(b); err != nil {
			return errors.WithStack(err)
		}
	}
	w.count += uint64(len(events))
	return nil
}

// Close writes the checksum, finalizes the header and closes the file.
func (w *Writer) Close() error {
	if err := w.finalize(); err != nil {
		_ = w.file.Close()
		return err
	}
	return errors.WithStack(w.file.Close())
}

func (w *Writer) finalize() error {
	if _, err := w.buf.Write(w.hasher.Sum(nil)); err != nil {
		return errors.WithStack(err)
	}
	if err := w.buf.Flush(); err != nil {
		return errors.WithStack(err)
	}

	header := Header{
		Magic:   Magic,
		Version: Version,
		Count:   w.count,
	}
	if _, err := w.file.WriteAt(photon.NewFromValue(&header).B, 0); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(w.file.Sync())
}
