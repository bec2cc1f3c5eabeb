package kernel

// Err is a kernel error code. System calls return it negated.
type Err int32

const (
	ErrUnspecified Err = iota + 1
	ErrBadEnv
	ErrInval
	ErrNoMem
	ErrNoFreeEnv
	ErrFault
	ErrIPCNotRecv
	ErrEOF
	ErrRxdEmpty
	ErrTxdFull
)

func (e Err) Error() string { return e.String() }

func (e Err) String() string {
	switch e {
	case ErrUnspecified:
		return "unspecified error"
	case ErrBadEnv:
		return "bad environment"
	case ErrInval:
		return "invalid parameter"
	case ErrNoMem:
		return "out of memory"
	case ErrNoFreeEnv:
		return "out of environments"
	case ErrFault:
		return "segmentation fault"
	case ErrIPCNotRecv:
		return "env is not recving"
	case ErrEOF:
		return "unexpected end of file"
	case ErrRxdEmpty:
		return "receive queue empty"
	case ErrTxdFull:
		return "transmit queue full"
	default:
		return "unknown error"
	}
}

// Errno converts a system call return value into an error: nil for r >= 0.
func Errno(r int32) error {
	if r >= 0 {
		return nil
	}
	return Err(-r)
}

func errno(err Err) int32 { return -int32(err) }
