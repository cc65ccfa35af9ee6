// Package repository is the owner-scoped store. Every entity lookup and
// mutation filters by primary key and owning user id in a single predicate;
// a row owned by someone else is indistinguishable from a missing row, both
// surfacing as pgx.ErrNoRows.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type updateBuilder struct {
	sets []string
	args []any
}

func (b *updateBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *updateBuilder) setJSON(column string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	b.set(column, data)
	return nil
}

func (b *updateBuilder) query(table, where string) string {
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(b.sets, ", "), where)
}

// whereIDAndOwner builds the single-predicate guard clause; argCount is the
// total argument count after appending id and owner, in that order.
func whereIDAndOwner(argCount int) string {
	return fmt.Sprintf("id = $%d AND user_id = $%d", argCount-1, argCount)
}

func marshalJSON(value any) ([]byte, error) {
	return json.Marshal(value)
}

func unmarshalJSON(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
