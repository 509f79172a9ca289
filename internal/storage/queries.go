package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Transaction is a row of the transactions table.
type Transaction struct {
	Seq       int64
	ID        string
	Type      string
	Category  string
	Amount    string
	CreatedAt int64
}

type CreateTransactionParams struct {
	ID        string
	Type      string
	Category  string
	Amount    string
	CreatedAt int64
}

const createTransaction = `
INSERT INTO transactions (id, type, category, amount, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING seq, id, type, category, amount, created_at`

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction, arg.ID, arg.Type, arg.Category, arg.Amount, arg.CreatedAt)
	var i Transaction
	err := row.Scan(&i.Seq, &i.ID, &i.Type, &i.Category, &i.Amount, &i.CreatedAt)
	return i, err
}

const listTransactions = `
SELECT seq, id, type, category, amount, created_at
FROM transactions
ORDER BY seq ASC`

func (q *Queries) ListTransactions(ctx context.Context) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(&i.Seq, &i.ID, &i.Type, &i.Category, &i.Amount, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTransactionAtDisplayPosition = `
SELECT seq, id, type, category, amount, created_at
FROM transactions
ORDER BY seq DESC
LIMIT 1 OFFSET ?`

func (q *Queries) GetTransactionAtDisplayPosition(ctx context.Context, position int64) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransactionAtDisplayPosition, position)
	var i Transaction
	err := row.Scan(&i.Seq, &i.ID, &i.Type, &i.Category, &i.Amount, &i.CreatedAt)
	return i, err
}

const deleteTransactionBySeq = `DELETE FROM transactions WHERE seq = ?`

func (q *Queries) DeleteTransactionBySeq(ctx context.Context, seq int64) error {
	_, err := q.db.ExecContext(ctx, deleteTransactionBySeq, seq)
	return err
}

const deleteTransactionByID = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransactionByID(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransactionByID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countTransactions = `SELECT COUNT(*) FROM transactions`

func (q *Queries) CountTransactions(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTransactions)
	var n int64
	err := row.Scan(&n)
	return n, err
}
