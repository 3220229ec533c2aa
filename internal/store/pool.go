package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/franz/track-index/internal/util"
)

// ErrPoolClosed is returned by Acquire after Close
var ErrPoolClosed = errors.New("connection pool closed")

const probeTimeout = 2 * time.Second

// Pool hands out database connections and takes them back for reuse.
// There is no cap on how many connections may be open at once; size bounds
// only how many idle connections are kept.
type Pool struct {
	db      *sqlx.DB
	idle    chan *sqlx.Conn
	pragmas []string

	mu      sync.Mutex
	created int
	closed  bool
}

// PoolStats is a snapshot of pool counters
type PoolStats struct {
	Created int // Connections opened since the pool was built
	Idle    int // Connections waiting for reuse
}

// NewPool builds a pool over db keeping at most size idle connections.
// pragmas run once on every newly opened connection.
func NewPool(db *sqlx.DB, size int, pragmas []string) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		db:      db,
		idle:    make(chan *sqlx.Conn, size),
		pragmas: pragmas,
	}
}

// Acquire returns an idle connection or opens a new one
func (p *Pool) Acquire(ctx context.Context) (*sqlx.Conn, error) {
	select {
	case conn := <-p.idle:
		return conn, nil
	default:
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	for _, pragma := range p.pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			util.WarnLog("Pool: %s failed: %v", pragma, err)
		}
	}

	p.mu.Lock()
	p.created++
	n := p.created
	p.mu.Unlock()

	util.DebugLog("Pool: opened connection #%d", n)
	return conn, nil
}

// Release returns conn to the pool. A connection that fails the liveness
// probe, or that does not fit in the idle queue, is closed instead.
func (p *Pool) Release(conn *sqlx.Conn) {
	if conn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	var one int
	if err := conn.QueryRowxContext(ctx, "SELECT 1").Scan(&one); err != nil {
		util.DebugLog("Pool: dropping dead connection: %v", err)
		conn.Close()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		conn.Close()
		return
	}

	select {
	case p.idle <- conn:
	default:
		conn.Close()
	}
}

// Stats returns current pool counters
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Created: p.created, Idle: len(p.idle)}
}

// Close closes idle connections and the underlying database handle
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
drain:
	for {
		select {
		case conn := <-p.idle:
			conn.Close()
		default:
			break drain
		}
	}
	p.mu.Unlock()

	return p.db.Close()
}
