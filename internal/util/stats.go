package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling/data-channel counter.
var Stats = &stats{}

type stats struct {
	SignalsSent atomic.Int64 // cumulative signaling messages written to the relay
	SignalsRecv atomic.Int64 // cumulative signaling messages read from the relay
	Reconnects  atomic.Int64 // cumulative relay reconnect attempts
	BytesSent   atomic.Int64 // cumulative bytes written to DataChannel
	BytesRecv   atomic.Int64 // cumulative bytes read  from DataChannel
}

func (s *stats) AddSignalSent() { s.SignalsSent.Add(1) }
func (s *stats) AddSignalRecv() { s.SignalsRecv.Add(1) }
func (s *stats) AddReconnect()  { s.Reconnects.Add(1) }
func (s *stats) AddSent(n int)  { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)  { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs link statistics every
// interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevSig int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				sig := Stats.SignalsSent.Load() + Stats.SignalsRecv.Load()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs
				sigC := sig - prevSig

				if sigC > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, sigC))
				}

				prevSent = sent
				prevRecv = recv
				prevSig = sig

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, signals int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Signals: %3d",
		formatBytes(inS),
		formatBytes(outS),
		signals,
	)
}
