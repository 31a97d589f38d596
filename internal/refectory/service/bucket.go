package service

import "strings"

// Unassigned is the audit bucket for readers whose machine number is not
// one of the configured counters.
const Unassigned = "0"

var buckets = map[string]struct{}{"1": {}, "2": {}, "3": {}}

// BucketFor maps a reader's machine number ("jihao") to its audit bucket.
func BucketFor(machineNo string) string {
	machineNo = strings.TrimSpace(machineNo)
	if _, ok := buckets[machineNo]; ok {
		return machineNo
	}
	return Unassigned
}

// Buckets lists every bucket in display order, Unassigned last.
func Buckets() []string {
	return []string{"1", "2", "3", Unassigned}
}
