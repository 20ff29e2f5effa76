package engage

// Buffering constants for per-student temporal aggregation. A student needs
// at least WarmFrameCount buffered regions before aggregated features carry
// enough signal to predict from; until then the student is "cold" and
// reports no predictions.
const (
	// BufferCapacity is the maximum number of recent regions kept per
	// student. The oldest region is evicted on overflow.
	BufferCapacity = 10

	// WarmFrameCount is the buffered-frame threshold at which a student
	// transitions from cold to warm. The transition is one-directional per
	// processing run: buffers only shrink on Reset.
	WarmFrameCount = 5
)

// regionBuffer is a bounded FIFO of the most recent cropped regions for one
// tracked student.
type regionBuffer struct {
	regions []Region
}

func newRegionBuffer() *regionBuffer {
	return &regionBuffer{regions: make([]Region, 0, BufferCapacity)}
}

// Push appends a region, evicting the oldest when capacity is exceeded.
func (b *regionBuffer) Push(r Region) {
	b.regions = append(b.regions, r)
	if len(b.regions) > BufferCapacity {
		b.regions = b.regions[1:]
	}
}

// Len returns the number of buffered regions.
func (b *regionBuffer) Len() int {
	return len(b.regions)
}

// Warm reports whether enough history is buffered for temporal aggregation.
func (b *regionBuffer) Warm() bool {
	return len(b.regions) >= WarmFrameCount
}

// Regions returns the buffered regions, oldest first.
func (b *regionBuffer) Regions() []Region {
	return b.regions
}
