// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package publish stores benchmark results in a redis hash per run, so
// that runs on many boards may be gathered in one place.
package publish

import (
	"fmt"

	redigo "github.com/garyburd/redigo/redis"
	"github.com/satori/go.uuid"

	"github.com/platinasystems/goes-dmabench/internal/bench"
)

// Prefix of each run's hash and name of the list of run ids.
const DefaultHash = "dmabench"

type Publisher struct {
	Hash string
	conn redigo.Conn
}

func Dial(addr string) (*Publisher, error) {
	c, err := redigo.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return New(c), nil
}

func New(c redigo.Conn) *Publisher {
	return &Publisher{Hash: DefaultHash, conn: c}
}

func (p *Publisher) Close() error { return p.conn.Close() }

// Key of the given run's hash.
func (p *Publisher) Key(id uuid.UUID) string {
	return p.Hash + ":" + id.String()
}

// Publish the result under a new run id, which it returns.
func (p *Publisher) Publish(board string, res *bench.Result) (uuid.UUID, error) {
	id := uuid.NewV4()
	key := p.Key(id)
	args := redigo.Args{}.Add(key).Add(Fields(board, res)...)
	if _, err := p.conn.Do("HSET", args...); err != nil {
		return id, fmt.Errorf("HSET %s: %w", key, err)
	}
	if _, err := p.conn.Do("RPUSH", p.Hash, id.String()); err != nil {
		return id, fmt.Errorf("RPUSH %s: %w", p.Hash, err)
	}
	return id, nil
}

// Fields returns the alternating field names and values of a result.
func Fields(board string, res *bench.Result) []interface{} {
	f := []interface{}{
		"board", board,
		"length", res.Length,
		"runs", len(res.Runs),
	}
	for _, path := range []bench.Path{bench.DMA, bench.Memcpy} {
		s := res.Stats(path)
		name := path.String()
		f = append(f,
			name+".min", s.Min,
			name+".max", s.Max,
			name+".mean", fmt.Sprintf("%.1f", s.Mean),
			name+".p50", fmt.Sprintf("%.1f", s.P50),
			name+".p90", fmt.Sprintf("%.1f", s.P90),
			name+".failed", s.Failed,
		)
	}
	for _, r := range res.Runs {
		f = append(f,
			fmt.Sprint("run.", r.N, ".DMA"), r.DMA.Nanoseconds(),
			fmt.Sprint("run.", r.N, ".memcpy"), r.Memcpy.Nanoseconds(),
			fmt.Sprint("run.", r.N, ".faster"), r.Faster().String(),
		)
	}
	return f
}
