package workerpool

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/warren/pkg/hosterrors"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/protocol"
)

// DefaultSize is the pool's default worker count (spec §4: "Reusable pool
// of pre-spawned workers").
const DefaultSize = 4

// Process is one spawned worker subprocess and its message transport. It is
// unassigned to any plugin while sitting in the pool.
type Process struct {
	Cmd           *exec.Cmd
	Transport     *protocol.Transport
	MemoryLimitMb int
}

// SpawnFunc starts one fresh worker process at the pool's default memory
// profile. It is injected so tests can supply an in-memory fake instead of
// a real subprocess.
type SpawnFunc func() (*Process, error)

// Pool hands out pre-spawned Process handles keyed by the default resource
// profile. Plugins requiring a non-default memory cap get a dedicated
// worker spawned outside the pool by the sandbox manager (spec §4.6 step 3).
type Pool struct {
	mu            sync.Mutex
	spawn         SpawnFunc
	memoryLimitMb int
	ready         chan *Process
	closed        bool
}

// NewPool constructs a pool of the given size at memoryLimitMb, using spawn
// to create each worker. Call Start to pre-spawn the initial set.
func NewPool(size int, memoryLimitMb int, spawn SpawnFunc) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		spawn:         spawn,
		memoryLimitMb: memoryLimitMb,
		ready:         make(chan *Process, size),
	}
}

// DefaultMemoryLimitMb reports the memory profile this pool's workers were
// spawned at, used by the sandbox manager to decide between Acquire and a
// dedicated spawn (spec §4.6 step 3).
func (p *Pool) DefaultMemoryLimitMb() int {
	return p.memoryLimitMb
}

// Start pre-spawns the pool's full complement of workers.
func (p *Pool) Start() error {
	for i := 0; i < cap(p.ready); i++ {
		proc, err := p.spawn()
		if err != nil {
			return fmt.Errorf("pre-spawn worker %d/%d: %w", i+1, cap(p.ready), err)
		}
		p.ready <- proc
	}
	return nil
}

// Acquire blocks until a ready worker is available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Process, error) {
	select {
	case proc, ok := <-p.ready:
		if !ok {
			return nil, hosterrors.New(hosterrors.KindResource, "", "Acquire", fmt.Errorf("pool is closed"))
		}
		return proc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release resets proc over its transport and, on success, returns it to the
// ready queue. A failed reset terminates the process and spawns a
// replacement so the pool's capacity does not shrink (spec §4: "terminate
// on failed reset").
func (p *Pool) Release(proc *Process) {
	if err := p.resetHandshake(proc); err != nil {
		log.WithComponent("workerpool").Warn().Err(err).Msg("worker failed RESET handshake, terminating")
		p.terminate(proc)
		replacement, spawnErr := p.spawn()
		if spawnErr != nil {
			log.WithComponent("workerpool").Error().Err(spawnErr).Msg("failed to spawn replacement worker after failed reset")
			return
		}
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			p.terminate(replacement)
			return
		}
		p.ready <- replacement
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.terminate(proc)
		return
	}
	p.ready <- proc
}

func (p *Pool) resetHandshake(proc *Process) error {
	id := uuid.NewString()
	if err := proc.Transport.Send(protocol.NewRequest(protocol.TagReset, id, nil)); err != nil {
		return fmt.Errorf("send RESET: %w", err)
	}

	type result struct {
		msg protocol.Message
		err error
	}
	recvCh := make(chan result, 1)
	go func() {
		msg, err := proc.Transport.Recv()
		recvCh <- result{msg, err}
	}()

	select {
	case r := <-recvCh:
		if r.err != nil {
			return fmt.Errorf("recv RESET_COMPLETE: %w", r.err)
		}
		if r.msg.Tag != protocol.TagResetComplete || r.msg.ReplyTo != id {
			return fmt.Errorf("unexpected reply to RESET: tag=%s replyTo=%s", r.msg.Tag, r.msg.ReplyTo)
		}
		return nil
	case <-time.After(protocol.DefaultTimeout):
		return fmt.Errorf("RESET handshake timed out after %s", protocol.DefaultTimeout)
	}
}

func (p *Pool) terminate(proc *Process) {
	if proc == nil || proc.Cmd == nil || proc.Cmd.Process == nil {
		return
	}
	if err := proc.Cmd.Process.Kill(); err != nil {
		log.WithComponent("workerpool").Warn().Err(err).Msg("failed to kill worker process")
	}
}

// Close terminates every worker currently sitting in the pool and refuses
// further Acquire/Release calls. Workers currently checked out are left
// for their owners to terminate.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.ready)
	for proc := range p.ready {
		p.terminate(proc)
	}
}
