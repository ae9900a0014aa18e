// Package sampler reads the OS load average via gopsutil and normalizes it
// by logical CPU count.
package sampler
