package blockmap

import (
	"math/bits"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"

	"github.com/outofforest/mass"
	"github.com/outofforest/photon"
	"github.com/outofforest/reuse/types"
)

const (
	// SlotsPerPage is the number of consecutive blocks covered by one page.
	SlotsPerPage = 1 << pageBits

	pageBits       = 6
	initialBuckets = 512
	// maxLoad is the average chain length above which the directory is quadrupled.
	maxLoad     = 8
	massEntries = 128
)

// Slot stores the information about the last access to the block.
type Slot struct {
	Node   types.NodeAddress
	Source types.Source
}

// Config stores block map configuration.
type Config struct {
	// BlockShift is the number of low address bits ignored when computing block index.
	BlockShift uint8

	// SampleMask is the address sampling mask expressed in blocks. Trailing ones of the mask are skipped when
	// indexing pages, so pages stay dense when only a fraction of the blocks is analyzed.
	SampleMask uint64
}

type page struct {
	Slots [SlotsPerPage]Slot
}

type entry struct {
	Key  uint64
	Page *page
	Next *entry
}

// New creates new block map.
func New(config Config) (*Map, error) {
	if config.BlockShift >= 64 {
		return nil, errors.Errorf("block shift must be lower than 64, got %d", config.BlockShift)
	}

	maskBits := uint8(bits.TrailingZeros64(^config.SampleMask))
	return &Map{
		config:    config,
		maskBits:  maskBits,
		pageShift: pageBits + maskBits,
		buckets:   make([]*entry, initialBuckets),
		massPage:  mass.New[page](massEntries),
		massEntry: mass.New[entry](massEntries),
	}, nil
}

// Map maps memory blocks to slots. The directory is a hash table of pages, each page covering SlotsPerPage
// consecutive (sampled) blocks, so spatially close blocks share the allocation.
type Map struct {
	config    Config
	maskBits  uint8
	pageShift uint8

	buckets   []*entry
	numPages  uint64
	massPage  *mass.Mass[page]
	massEntry *mass.Mass[entry]

	lastKey  uint64
	lastPage *page
}

// Block returns the block index of the address.
func (m *Map) Block(address uint64) uint64 {
	return address >> m.config.BlockShift
}

// Lookup returns the slot of the block containing the address. Slot is created if it doesn't exist.
func (m *Map) Lookup(address uint64) *Slot {
	block := m.Block(address)
	key := block >> m.pageShift
	index := (block >> m.maskBits) & (SlotsPerPage - 1)

	if m.lastPage != nil && m.lastKey == key {
		return &m.lastPage.Slots[index]
	}

	p := m.find(key)
	m.lastKey = key
	m.lastPage = p
	return &p.Slots[index]
}

// Pages returns the number of allocated pages.
func (m *Map) Pages() uint64 {
	return m.numPages
}

func (m *Map) find(key uint64) *page {
	bucket := hashKey(key) & uint64(len(m.buckets)-1)
	for e := m.buckets[bucket]; e != nil; e = e.Next {
		if e.Key == key {
			return e.Page
		}
	}

	e := m.massEntry.New()
	e.Key = key
	e.Page = m.massPage.New()
	e.Next = m.buckets[bucket]
	m.buckets[bucket] = e
	m.numPages++

	if m.numPages > uint64(len(m.buckets))*maxLoad {
		m.grow()
	}

	return e.Page
}

func (m *Map) grow() {
	buckets := make([]*entry, 4*len(m.buckets))
	for _, e := range m.buckets {
		for e != nil {
			next := e.Next
			bucket := hashKey(e.Key) & uint64(len(buckets)-1)
			e.Next = buckets[bucket]
			buckets[bucket] = e
			e = next
		}
	}
	m.buckets = buckets
}

func hashKey(key uint64) uint64 {
	return xxhash.Sum64(photon.NewFromValue(&key).B)
}
