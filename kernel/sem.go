package kernel

// Sem is a counting semaphore with a FIFO wait set. Storage is provided
// by the caller; SemInit must run before any other operation.
type Sem struct {
	k       *Kernel
	count   uint16
	waiters list
}

// SemInit readies s with an initial count.
func (k *Kernel) SemInit(s *Sem, count uint16) Status {
	if s == nil {
		return ErrParam
	}
	s.k = k
	s.count = count
	s.waiters.init()
	return OK
}

// Count returns a snapshot of the semaphore's count.
func (s *Sem) Count() uint16 { return s.count }

// Wait takes one count, blocking the caller until one is available.
// There is no timeout.
func (s *Sem) Wait() Status {
	if s == nil || s.k == nil {
		return ErrParam
	}
	k := s.k
	if k.port.InISR() {
		return ErrISR
	}
	k.EnterCritical()
	if s.count > 0 {
		s.count--
		k.ExitCritical()
		return OK
	}
	k.blockCurrentOn(&s.waiters)
	k.ExitCritical()
	// Resumed by a post.
	return OK
}

// Post gives one count, or hands it directly to the longest-waiting
// task if any is blocked.
func (s *Sem) Post() Status {
	if s == nil || s.k == nil {
		return ErrParam
	}
	k := s.k
	k.EnterCritical()
	if s.waiters.empty() {
		s.count++
	} else {
		k.wakeHead(&s.waiters)
	}
	k.ExitCritical()
	return OK
}

// PostFromISR is Post for interrupt context: it never blocks and leaves
// the context switch to the ISR epilogue. If a task with higher
// priority than the running one was woken, *woken is set.
func (s *Sem) PostFromISR(woken *bool) Status {
	if s == nil || s.k == nil {
		return ErrParam
	}
	k := s.k
	if s.waiters.empty() {
		s.count++
		return OK
	}
	if k.wakeHeadFromISR(&s.waiters) && woken != nil {
		*woken = true
	}
	return OK
}
