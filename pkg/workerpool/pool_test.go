package workerpool

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cuemby/warren/pkg/protocol"
)

// fakeWorker simulates a worker subprocess's stdin/stdout pair entirely
// in-memory, with a goroutine that answers RESET with RESET_COMPLETE.
func fakeWorker(t *testing.T) *Process {
	t.Helper()
	hostR, workerW := io.Pipe()
	workerR, hostW := io.Pipe()

	hostTransport := protocol.NewTransport(hostR, hostW)
	workerTransport := protocol.NewTransport(workerR, workerW)

	go func() {
		for {
			msg, err := workerTransport.Recv()
			if err != nil {
				return
			}
			if msg.Tag == protocol.TagReset {
				_ = workerTransport.Send(protocol.NewResponse(protocol.TagResetComplete, msg.ID, nil))
			}
		}
	}()

	return &Process{Transport: hostTransport, MemoryLimitMb: 256}
}

func TestPoolStartFillsReadyQueue(t *testing.T) {
	spawned := 0
	pool := NewPool(2, 256, func() (*Process, error) {
		spawned++
		return fakeWorker(t), nil
	})
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if spawned != 2 {
		t.Errorf("expected 2 workers spawned, got %d", spawned)
	}
}

func TestAcquireReleaseRoundtrip(t *testing.T) {
	pool := NewPool(1, 256, func() (*Process, error) { return fakeWorker(t), nil })
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	proc, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	pool.Release(proc)

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	proc2, err := pool.Acquire(ctx2)
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if proc2 != proc {
		t.Error("expected the same worker to be recycled after a clean reset")
	}
}

func TestAcquireBlocksUntilContextDone(t *testing.T) {
	pool := NewPool(0, 256, func() (*Process, error) { return fakeWorker(t), nil })
	// size 0 normalizes to DefaultSize in NewPool's zero check only for
	// non-positive input passed directly; construct with an explicit tiny
	// cap instead to exercise blocking deterministically.
	pool = &Pool{spawn: func() (*Process, error) { return fakeWorker(t), nil }, ready: make(chan *Process)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := pool.Acquire(ctx)
	if err == nil {
		t.Fatal("expected Acquire to fail when no worker is ready and context expires")
	}
}
