package kernel

// PanicInfo describes a panic recovered from an environment's user code.
// The environment is destroyed; the kernel keeps running.
type PanicInfo struct {
	EnvID EnvID
	Value any
	Stack []byte
}

// SetPanicHandler installs fn to be told about user panics. It runs on the
// panicking environment's thread, before the environment is destroyed, and
// must not panic.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.panicHandler = fn
}

func (k *Kernel) reportPanic(info PanicInfo) {
	k.mu.Lock()
	fn := k.panicHandler
	k.mu.Unlock()

	k.log.Warn().Stringer("env", info.EnvID).Interface("panic", info.Value).Msg("user panic")
	if fn != nil {
		fn(info)
	}
}
