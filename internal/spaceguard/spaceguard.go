// Package spaceguard enforces the output space budget.
//
// Admission reserves a record's estimated size before its write starts, so
// concurrent in-flight writes are all counted against the budget and the
// total written can never exceed it. Reservations are settled to the actual
// byte count on a successful write and returned when no write happens. The
// estimate is deliberately conservative (source size plus a fixed overhead):
// running out of budget is a designed stopping point, overrunning it is not.
package spaceguard

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrBudgetExhausted signals that admitting the next write would exceed the
// budget or the free-disk floor. The batch halts cleanly and can resume in a
// later run with more capacity.
var ErrBudgetExhausted = errors.New("space budget exhausted")

const (
	// estimateOverhead pads every size estimate to cover encoding overhead.
	estimateOverhead = 4096
	// freeDiskFloor is the minimum free space kept on the output filesystem.
	freeDiskFloor = 50 * 1000 * 1000
)

// Guard tracks consumed output bytes against the configured budget. The
// consumed counter includes the reservations of admitted writes still in
// flight, not just bytes already on disk.
type Guard struct {
	outDir   string
	limit    int64
	consumed atomic.Int64
}

// New constructs a guard for outDir with the given byte budget.
func New(outDir string, limitBytes int64) *Guard {
	return &Guard{outDir: outDir, limit: limitBytes}
}

// Estimate returns the conservative size estimate for a source file.
func Estimate(sourceBytes int64) int64 {
	return sourceBytes + estimateOverhead
}

// Admit reserves estimate against the budget. On success the estimate counts
// as consumed until the caller settles it with Commit or Release, so later
// admissions see every write still in flight. It returns ErrBudgetExhausted,
// leaving the accounting untouched, when the reservation would push
// consumption past the budget or the output filesystem is nearly full.
// Admission is serialized through the allocator, so check-then-reserve needs
// no compare-and-swap.
func (g *Guard) Admit(estimate int64) error {
	if g.consumed.Load()+estimate > g.limit {
		return fmt.Errorf("%w: %d bytes consumed of %d, next record needs ~%d",
			ErrBudgetExhausted, g.consumed.Load(), g.limit, estimate)
	}
	free, err := freeBytes(g.outDir)
	if err != nil {
		return fmt.Errorf("check output filesystem: %w", err)
	}
	if free-estimate < freeDiskFloor {
		return fmt.Errorf("%w: output filesystem has %d bytes free", ErrBudgetExhausted, free)
	}
	g.consumed.Add(estimate)
	return nil
}

// Commit settles an admitted reservation with the actual bytes written.
func (g *Guard) Commit(estimate, actual int64) {
	g.consumed.Add(actual - estimate)
}

// Release returns an admitted reservation that produced no write (the target
// already existed, or the write failed).
func (g *Guard) Release(estimate int64) {
	g.consumed.Add(-estimate)
}

// Consumed returns the bytes charged so far this run, including outstanding
// reservations.
func (g *Guard) Consumed() int64 {
	return g.consumed.Load()
}

// Limit returns the configured budget in bytes.
func (g *Guard) Limit() int64 {
	return g.limit
}

func freeBytes(dir string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
