package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opmodel/opc/internal/core"
	"github.com/opmodel/opc/internal/output"
)

// LabelTransactional marks operations that run inside a database
// transaction.
const LabelTransactional = "transactional"

var dbType = core.TypeOf[*sql.DB]()

// Transaction runs labelled operations inside a *sql.Tx. The database is
// requested from the service container; later frames consume the *sql.Tx.
type Transaction struct{}

func NewTransaction() *Transaction { return &Transaction{} }

func (t *Transaction) Name() string { return "transaction" }

func (t *Transaction) Matches(d *core.OperationDescriptor) bool {
	return d.Labels[LabelTransactional] == "true"
}

func (t *Transaction) Explain(d *core.OperationDescriptor, matched bool) string {
	if matched {
		return "labelled transactional"
	}
	return "not labelled transactional"
}

func (t *Transaction) Build(mc *core.MethodContext) error {
	db := mc.RequestService(dbType)
	op := mc.Descriptor().Name

	f := core.NewNested("transaction",
		[]core.Variable{db},
		[]core.Variable{core.Var[*sql.Tx]("")},
		func(ctx context.Context, args []any, next core.Next) (any, error) {
			return inTx(ctx, op, args[0].(*sql.DB), next)
		})
	f.Doc = []string{"commits on success, rolls back on failure"}
	return mc.Append(f)
}

func inTx(ctx context.Context, op string, db *sql.DB, next core.Next) (res any, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(tx, op)
			panic(p)
		}
	}()

	res, err = next(ctx, tx)
	if err != nil {
		rollback(tx, op)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return res, nil
}

func rollback(tx *sql.Tx, op string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		output.Warn("transaction rollback failed", "operation", op, "err", err)
	}
}
