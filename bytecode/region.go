package bytecode

// RegionKind identifies the handler type of an exception region.
type RegionKind uint8

const (
	RegionCatch RegionKind = iota
	RegionFinally
)

func (k RegionKind) String() string {
	switch k {
	case RegionCatch:
		return "catch"
	case RegionFinally:
		return "finally"
	}
	return "unknown"
}

// ExceptionRegion describes a protected range and its handler. Offsets are
// word offsets into the instruction stream; end offsets are exclusive.
type ExceptionRegion struct {
	Kind         RegionKind
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
	CatchType    string // empty catches everything
}

// Protects returns true if the given offset lies inside the try range.
func (r ExceptionRegion) Protects(offset int) bool {
	return offset >= r.TryStart && offset < r.TryEnd
}

// InHandler returns true if the given offset lies inside the handler range.
func (r ExceptionRegion) InHandler(offset int) bool {
	return offset >= r.HandlerStart && offset < r.HandlerEnd
}
