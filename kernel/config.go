package kernel

const (
	// MaxPrio is the number of priority levels. Priority 0 is highest;
	// MaxPrio-1 is reserved for the idle task.
	MaxPrio = 32

	// IdleStackWords is the idle task's stack depth in words.
	IdleStackWords = 128

	// StackMagic is painted into the low word of every task stack and
	// validated on each tick.
	StackMagic uint32 = 0xDEADBEEF

	// mutexNestMax caps recursive mutex acquisition.
	mutexNestMax = 255
)
