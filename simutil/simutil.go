// Package simutil provides stopping-condition predicates and population
// summaries used to drive and observe a sim.Simulator run.
package simutil

import (
	"sort"

	"github.com/ficap/rofi-upgrade-strategy-simulator/device"
)

// Predicate reports something about a single device. AllDevices combines
// one into a population-wide StopCondition.
type Predicate func(d *device.Device) bool

// DeviceAtVersion reports whether d is not of devType (vacuously true, so
// it never blocks convergence of an unrelated type) or has running
// firmware at exactly version. Pass -1 for devType to match every device
// regardless of type.
func DeviceAtVersion(version int, devType int) Predicate {
	return func(d *device.Device) bool {
		if devType >= 0 && int(d.Type()) != devType {
			return true
		}
		return int(d.RunningFirmware().Version()) == version
	}
}

// QueueEmpty reports whether d is not of devType, or its ingress mailbox
// is empty. Pass -1 for devType to match every device regardless of type.
func QueueEmpty(devType int) Predicate {
	return func(d *device.Device) bool {
		if devType >= 0 && int(d.Type()) != devType {
			return true
		}
		return d.QueueDepth() == 0
	}
}

// AllDevices reports whether predicate holds for every device in devices.
// Wrapped in a closure over predicate, it serves as a sim.StopCondition.
func AllDevices(devices []*device.Device, predicate Predicate) bool {
	for _, d := range devices {
		if !predicate(d) {
			return false
		}
	}
	return true
}

// AllDevicesAtVersion is shorthand for AllDevices(devices,
// DeviceAtVersion(version, devType)), the convergence condition every
// scenario in package sim's test suite waits on.
func AllDevicesAtVersion(devices []*device.Device, version int, devType int) bool {
	return AllDevices(devices, DeviceAtVersion(version, devType))
}

// SumQueueLengths returns the total number of messages waiting across
// every device's ingress mailbox matching devType (or all devices, if
// devType is -1).
func SumQueueLengths(devices []*device.Device, devType int) int {
	sum := 0
	for _, d := range devices {
		if devType >= 0 && int(d.Type()) != devType {
			continue
		}
		sum += d.QueueDepth()
	}
	return sum
}

// DeviceTypesPresent returns every distinct device type present in
// devices, in ascending order.
func DeviceTypesPresent(devices []*device.Device) []int {
	seen := make(map[int]struct{})
	for _, d := range devices {
		seen[int(d.Type())] = struct{}{}
	}
	types := make([]int, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Ints(types)
	return types
}
