package dispatch

import (
	"context"
	"errors"

	"scrub/internal/identity"
	"scrub/internal/logging"
	"scrub/internal/record"
	"scrub/internal/spaceguard"
)

// allocRequest asks the allocator for an identity and a space grant. A
// release request carries no reply channel: it only advances the sequence for
// a file the worker could not read or was told to drop.
type allocRequest struct {
	seq      int
	release  bool
	tags     record.Tags
	estimate int64
	reply    chan allocReply
}

type allocReply struct {
	bundle    identity.Bundle
	missingID bool
	halted    bool
	cause     error
	err       error // fatal; the run stops
}

// runAllocator is the single owner of link-log allocation and space
// admission. Requests arrive in arbitrary order from the workers; a reorder
// buffer replays them in enumeration sequence so counter assignment is a
// function of the file set alone.
func (d *Dispatcher) runAllocator(ctx context.Context, requests <-chan *allocRequest, state *runState) {
	pending := make(map[int]*allocRequest)
	next := 0

	for req := range requests {
		pending[req.seq] = req
		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if cur.release {
				continue
			}
			cur.reply <- d.allocate(ctx, cur, state)
		}
	}
}

func (d *Dispatcher) allocate(ctx context.Context, req *allocRequest, state *runState) allocReply {
	if state.fatal != nil {
		return allocReply{err: state.fatal}
	}
	if state.halted {
		return allocReply{halted: true}
	}

	bundle, err := d.resolver.Resolve(ctx, req.tags)
	if err != nil {
		if errors.Is(err, identity.ErrMissingIdentifier) {
			return allocReply{missingID: true, cause: err}
		}
		// Anything else out of the link log is fatal: no further writes may
		// rely on its state.
		state.fatal = err
		return allocReply{err: err}
	}

	if err := d.guard.Admit(req.estimate); err != nil {
		if errors.Is(err, spaceguard.ErrBudgetExhausted) {
			state.halted = true
			state.haltReason = err.Error()
			d.logger.Warn("space budget reached, halting admission", logging.Error(err))
			return allocReply{halted: true}
		}
		if ctx.Err() != nil {
			state.fatal = ctx.Err()
			return allocReply{err: state.fatal}
		}
		// The filesystem could not be interrogated; stop admitting rather
		// than risk overrunning the device.
		state.halted = true
		state.haltReason = err.Error()
		d.logger.Warn("space check failed, halting admission", logging.Error(err))
		return allocReply{halted: true}
	}

	return allocReply{bundle: bundle}
}
