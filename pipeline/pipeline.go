package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/outofforest/mass"
	"github.com/outofforest/reuse/types"
)

// BatchRequestType defines special types of batch requests.
type BatchRequestType uint64

// BatchRequest type constants.
const (
	None BatchRequestType = iota
	Close
)

const (
	// maxChunkSize is the number of requests published together and the maximum number returned by Count.
	maxChunkSize = 96
	massSize     = 128
)

// NewBatchRequestFactory creates new factory of batch requests.
func NewBatchRequestFactory() *BatchRequestFactory {
	return &BatchRequestFactory{
		massBR: mass.New[BatchRequest](massSize),
	}
}

// BatchRequestFactory allocates batch requests in bulk.
type BatchRequestFactory struct {
	massBR *mass.Mass[BatchRequest]
}

// New returns new batch request.
func (f *BatchRequestFactory) New(events []types.Event) *BatchRequest {
	br := f.massBR.New()
	br.Events = events
	return br
}

// NewClose returns request closing the pipeline.
func (f *BatchRequestFactory) NewClose() *BatchRequest {
	br := f.massBR.New()
	br.Type = Close
	return br
}

// BatchRequest carries a batch of events of one thread.
type BatchRequest struct {
	Events []types.Event
	Next   *BatchRequest
	Type   BatchRequestType
}

// New creates new pipeline and its reader.
func New() (*Pipeline, *Reader) {
	var head *BatchRequest
	p := &Pipeline{
		tail:           &head,
		availableCount: lo.ToPtr[uint64](0),
	}
	return p, &Reader{
		head:           p.tail,
		availableCount: p.availableCount,
		processedCount: lo.ToPtr[uint64](0),
	}
}

// Pipeline passes event batches from a single producer to a single consumer.
type Pipeline struct {
	tail           **BatchRequest
	availableCount *uint64
	count          uint64
}

// Push pushes new request into the pipeline.
func (p *Pipeline) Push(item *BatchRequest) {
	*p.tail = item
	p.tail = &item.Next

	p.count++

	if p.count == maxChunkSize || item.Type == Close {
		p.Flush()
	}
}

// Flush publishes pushed requests to the reader.
func (p *Pipeline) Flush() {
	if p.count == 0 {
		return
	}
	atomic.AddUint64(p.availableCount, p.count)
	p.count = 0
}

// Reader reads requests from the pipeline.
type Reader struct {
	head           **BatchRequest
	availableCount *uint64
	processedCount *uint64

	currentAvailableCount uint64
	currentProcessedCount uint64
}

// Count returns the number of available requests to process. It waits until at least one request is available.
func (r *Reader) Count(ctx context.Context) (uint64, error) {
	r.Acknowledge()
	if toProcess := r.currentAvailableCount - r.currentProcessedCount; toProcess > 0 {
		return min(toProcess, maxChunkSize), nil
	}

	for {
		r.currentAvailableCount = atomic.LoadUint64(r.availableCount)
		if toProcess := r.currentAvailableCount - r.currentProcessedCount; toProcess > 0 {
			return min(toProcess, maxChunkSize), nil
		}

		select {
		case <-ctx.Done():
			return 0, errors.WithStack(ctx.Err())
		default:
		}

		time.Sleep(10 * time.Microsecond)
	}
}

// Acknowledge acknowledges processing of previously read requests.
func (r *Reader) Acknowledge() {
	atomic.StoreUint64(r.processedCount, r.currentProcessedCount)
}

// Processed returns the number of acknowledged requests.
func (r *Reader) Processed() uint64 {
	return atomic.LoadUint64(r.processedCount)
}

// Read reads next request from the pipeline.
func (r *Reader) Read() *BatchRequest {
	h := *r.head
	r.head = &h.Next
	r.currentProcessedCount++
	return h
}
