package fetch

// Slice is an inclusive range of message sequence numbers or UIDs assigned to
// one fetch worker.
type Slice struct {
	Start uint32
	End   uint32
}

func (s Slice) Count() uint32 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start + 1
}

// PartitionSlices splits the inclusive range [start, end] into at most
// `threads` contiguous, non-overlapping slices that together cover the range
// exactly. The last slice absorbs the division remainder. An empty range
// (end < start) yields no slices.
func PartitionSlices(start, end uint32, threads int) []Slice {
	if end < start {
		return nil
	}
	if threads < 1 {
		threads = 1
	}

	total := end - start + 1
	block := total / uint32(threads)
	if block == 0 {
		block = 1
	}

	slices := make([]Slice, 0, threads)
	for i := 0; i < threads; i++ {
		s := start + uint32(i)*block
		if s > end {
			break
		}
		e := s + block - 1
		if i == threads-1 || e > end {
			e = end
		}
		slices = append(slices, Slice{Start: s, End: e})
		if e == end {
			break
		}
	}
	return slices
}
