package port

// Clock is a wrapping millisecond counter.
type Clock interface {
	NowMillis() uint32
}
