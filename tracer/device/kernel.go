package device

import (
	"fmt"
	"sync"
	"time"
)

const (
	defaultLocalWorkSize1D = 64
	defaultLocalWorkSize2D = 8
)

// A KernelFunc processes a single work item. For 1D dispatches y is always 0.
type KernelFunc func(x, y int)

// A kernel bound to a device.
type Kernel struct {
	device *Device
	name   string
	fn     KernelFunc
}

// Get kernel name.
func (k *Kernel) Name() string {
	return k.name
}

// A rectangular range of work items.
type workgroup struct {
	x0, y0, x1, y1 int
}

// Get the number of workgroups needed to cover globalWorkSize items.
func Workgroups(globalWorkSize, localWorkSize int) int {
	if globalWorkSize <= 0 || localWorkSize <= 0 {
		return 0
	}
	return (globalWorkSize + localWorkSize - 1) / localWorkSize
}

// Execute the kernel for items [offset, offset+globalWorkSize). If
// localWorkSize is 0 then a default workgroup size is used. The call blocks
// until all workgroups complete.
func (k *Kernel) Exec1D(offset, globalWorkSize, localWorkSize int) (time.Duration, error) {
	if localWorkSize == 0 {
		localWorkSize = defaultLocalWorkSize1D
	}
	if offset < 0 || globalWorkSize < 0 || localWorkSize < 0 {
		return 0, k.workSizeErr(globalWorkSize, localWorkSize)
	}

	groups := make([]workgroup, 0, Workgroups(globalWorkSize, localWorkSize))
	for x := 0; x < globalWorkSize; x += localWorkSize {
		x1 := x + localWorkSize
		if x1 > globalWorkSize {
			x1 = globalWorkSize
		}
		groups = append(groups, workgroup{x0: offset + x, y0: 0, x1: offset + x1, y1: 1})
	}
	return k.run(groups)
}

// Execute the kernel over a 2D range. If both local work sizes are 0 then a
// default workgroup size is used.
func (k *Kernel) Exec2D(offsetX, offsetY, globalWorkSizeX, globalWorkSizeY, localWorkSizeX, localWorkSizeY int) (time.Duration, error) {
	if localWorkSizeX == 0 && localWorkSizeY == 0 {
		localWorkSizeX, localWorkSizeY = defaultLocalWorkSize2D, defaultLocalWorkSize2D
	}
	if offsetX < 0 || offsetY < 0 || globalWorkSizeX < 0 || globalWorkSizeY < 0 || localWorkSizeX <= 0 || localWorkSizeY <= 0 {
		return 0, k.workSizeErr(globalWorkSizeX*globalWorkSizeY, localWorkSizeX*localWorkSizeY)
	}

	groups := make([]workgroup, 0, Workgroups(globalWorkSizeX, localWorkSizeX)*Workgroups(globalWorkSizeY, localWorkSizeY))
	for y := 0; y < globalWorkSizeY; y += localWorkSizeY {
		y1 := y + localWorkSizeY
		if y1 > globalWorkSizeY {
			y1 = globalWorkSizeY
		}
		for x := 0; x < globalWorkSizeX; x += localWorkSizeX {
			x1 := x + localWorkSizeX
			if x1 > globalWorkSizeX {
				x1 = globalWorkSizeX
			}
			groups = append(groups, workgroup{x0: offsetX + x, y0: offsetY + y, x1: offsetX + x1, y1: offsetY + y1})
		}
	}
	return k.run(groups)
}

// Run workgroups on the device lanes and wait for all of them to complete.
func (k *Kernel) run(groups []workgroup) (time.Duration, error) {
	tick := time.Now()
	if len(groups) == 0 {
		return time.Since(tick), nil
	}

	lanes := k.device.lanes
	if lanes > len(groups) {
		lanes = len(groups)
	}

	groupChan := make(chan workgroup, len(groups))
	for _, group := range groups {
		groupChan <- group
	}
	close(groupChan)

	var wg sync.WaitGroup
	var errOnce sync.Once
	var runErr error

	wg.Add(lanes)
	for lane := 0; lane < lanes; lane++ {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errOnce.Do(func() {
						runErr = fmt.Errorf("device (%s): kernel %s panicked: %v", k.device.Name, k.name, r)
					})
				}
			}()

			for group := range groupChan {
				for y := group.y0; y < group.y1; y++ {
					for x := group.x0; x < group.x1; x++ {
						k.fn(x, y)
					}
				}
			}
		}()
	}
	wg.Wait()

	if runErr != nil {
		return 0, runErr
	}

	elapsed := time.Since(tick)
	k.device.logger.Debugf("kernel %s: %d workgroups on %d lanes in %s", k.name, len(groups), lanes, elapsed)
	return elapsed, nil
}

func (k *Kernel) workSizeErr(global, local int) error {
	return fmt.Errorf("device (%s): kernel %s: global %d, local %d: %w", k.device.Name, k.name, global, local, ErrInvalidWorkSize)
}
