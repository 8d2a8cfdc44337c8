package features

import "gonum.org/v1/gonum/stat"

// RollingWindow keeps the last windowSize values in a ring buffer. While
// fewer than windowSize values have been added the window is the values
// seen so far.
type RollingWindow struct {
	windowSize int
	values     []float64
	index      int
	count      int
	sum        float64
}

func NewRollingWindow(size int) *RollingWindow {
	return &RollingWindow{
		windowSize: size,
		values:     make([]float64, size),
	}
}

func (rw *RollingWindow) Add(value float64) {
	if rw.count < rw.windowSize {
		rw.values[rw.index] = value
		rw.sum += value
		rw.count++
		rw.index = (rw.index + 1) % rw.windowSize
	} else {
		oldValue := rw.values[rw.index]
		rw.values[rw.index] = value
		rw.sum = rw.sum - oldValue + value
		rw.index = (rw.index + 1) % rw.windowSize
	}
}

func (rw *RollingWindow) Mean() float64 {
	if rw.count == 0 {
		return 0.0
	}
	return rw.sum / float64(rw.count)
}

// StdDev returns the sample standard deviation of the window, 0 while the
// window holds fewer than two values.
func (rw *RollingWindow) StdDev() float64 {
	if rw.count < 2 {
		return 0.0
	}
	return stat.StdDev(rw.Values(), nil)
}

func (rw *RollingWindow) Values() []float64 {
	if rw.count < rw.windowSize {
		return rw.values[:rw.count]
	}
	return rw.values
}
