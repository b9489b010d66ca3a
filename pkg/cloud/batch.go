package cloud

// DefaultBatchSize is the provider's per-call limit for batched describe
// operations (e.g. ECS DescribeTasks/DescribeContainerInstances cap at 10
// ARNs per call).
const DefaultBatchSize = 10

// Chunk splits items into ordered, contiguous chunks of at most size
// elements each, preserving input order. The last chunk may be shorter.
// Chunk(items, n) always returns ceil(len(items)/n) chunks for n > 0, and
// the concatenation of the chunks equals items.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
