package frame

// tracker lists the entries touched since the last reset, in the order
// they were first touched. Every frame walk goes through it instead of
// visiting all slots.
type tracker struct {
	list []Handle
}

func (t *tracker) add(h Handle) int {
	t.list = append(t.list, h)
	return len(t.list) - 1
}

func (t *tracker) len() int {
	return len(t.list)
}

func (t *tracker) at(i int) Handle {
	return t.list[i]
}

func (t *tracker) reset() {
	t.list = t.list[:0]
}

func (f *Frame) isTracked(fe *Entry) bool {
	i := fe.trackerIndex
	return i >= 0 && i < f.tracker.len() && f.tracker.at(i) == fe.index
}

func (f *Frame) addToTracker(fe *Entry) {
	fe.trackerIndex = f.tracker.add(fe.index)
}

// swapInTracker exchanges the tracker positions of two entries
func (f *Frame) swapInTracker(a, b *Entry) {
	ia, ib := a.trackerIndex, b.trackerIndex
	f.tracker.list[ia], f.tracker.list[ib] = b.index, a.index
	a.trackerIndex, b.trackerIndex = ib, ia
}
