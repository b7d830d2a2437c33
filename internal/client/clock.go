package client

import "time"

// Clock абстрагирует время и таймеры: typing debounce, undo countdown и
// confirm-timeout в тестах управляются вручную.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Sleep(d time.Duration)
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
