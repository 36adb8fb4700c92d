// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package continuation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStorePg PostgreSQL 实现，多进程共享；需先建 continuation_snapshots 表。
type SnapshotStorePg struct {
	pool *pgxpool.Pool
}

// NewSnapshotStorePg 创建基于 PostgreSQL 的 SnapshotStore。
func NewSnapshotStorePg(pool *pgxpool.Pool) SnapshotStore {
	return &SnapshotStorePg{pool: pool}
}

// NewSnapshotStorePgFromDSN 按连接串创建 SnapshotStore 并验证连通性
func NewSnapshotStorePgFromDSN(ctx context.Context, dsn string) (*SnapshotStorePg, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &SnapshotStorePg{pool: pool}, nil
}

// Close 关闭连接池（可选，用于优雅退出）
func (s *SnapshotStorePg) Close() {
	s.pool.Close()
}

// Save 实现 SnapshotStore。
func (s *SnapshotStorePg) Save(ctx context.Context, snap *Snapshot) (string, error) {
	if snap == nil {
		return "", nil
	}
	id := snap.ID
	if id == "" {
		id = "snap-" + uuid.New().String()
		snap.ID = id
	}
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
		snap.CreatedAt = createdAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO continuation_snapshots
		 (id, owner_id, context_id, state, started_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (id) DO UPDATE SET
		   owner_id = EXCLUDED.owner_id,
		   context_id = EXCLUDED.context_id,
		   state = EXCLUDED.state,
		   started_at = EXCLUDED.started_at,
		   updated_at = now()`,
		id, snap.OwnerID, snap.ContextID, snap.State, snap.StartedAt, createdAt,
	)
	return id, err
}

// Load 实现 SnapshotStore。
func (s *SnapshotStorePg) Load(ctx context.Context, id string) (*Snapshot, error) {
	if id == "" {
		return nil, nil
	}
	var snap Snapshot
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, context_id, state, started_at, created_at
		 FROM continuation_snapshots
		 WHERE id = $1`,
		id,
	).Scan(&snap.ID, &snap.OwnerID, &snap.ContextID, &snap.State, &snap.StartedAt, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cloneSnapshot(&snap), nil
}

// ListByOwner 实现 SnapshotStore。
func (s *SnapshotStorePg) ListByOwner(ctx context.Context, ownerID string) ([]*Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, context_id, state, started_at, created_at
		 FROM continuation_snapshots
		 WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.OwnerID, &snap.ContextID, &snap.State, &snap.StartedAt, &snap.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, cloneSnapshot(&snap))
	}
	return out, rows.Err()
}

// Delete 实现 SnapshotStore。
func (s *SnapshotStorePg) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM continuation_snapshots WHERE id = $1`, id)
	return err
}
