// Package baseline maintains the rolling "normal load" statistic.
//
// The baseline is the 95th percentile (linear interpolation between ranks)
// of the normalized load samples observed over a trailing time window. It is
// rebuilt from scratch on every process start; nothing is persisted.
package baseline
