package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ticket-bazaar/internal/apierr"
)

// WithDB runs the rest of the chain inside one transaction on one pooled
// connection. It commits when the handler succeeds, then runs the
// AfterCommit hooks; it rolls back on any error or panic.
func WithDB(db *bun.DB) Middleware {
	return func(next Handler) Handler {
		return func(req *Request) (val any, err error) {
			ctx := req.Context()
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return nil, fmt.Errorf("begin transaction: %w", err)
			}
			req.Tx = tx

			committed := false
			defer func() {
				if committed {
					return
				}
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
					req.Log.LogDatabase("ROLLBACK", "", fmt.Sprintf("request %s: %v", req.ID, rbErr))
				}
			}()

			val, err = next(req)
			if err != nil {
				return nil, err
			}
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("commit: %w", err)
			}
			committed = true

			// The response is already decided; a client hanging up must not
			// cut the hooks short.
			hookCtx := context.WithoutCancel(ctx)
			hooks := req.afterCommit
			req.afterCommit = nil
			for _, fn := range hooks {
				fn(hookCtx)
			}
			return val, nil
		}
	}
}

// DBErrors names the custom SQLSTATEs raised by our own triggers.
var DBErrors = map[pq.ErrorCode]string{
	"ZX001": "listing_already_claimed",
	"ZX002": "listing_not_available",
}

// Condition returns the symbolic name of a store error code, e.g.
// "unique_violation".
func Condition(e *pq.Error) string {
	if name, ok := DBErrors[e.Code]; ok {
		return name
	}
	return e.Code.Name()
}

// CodeHandler turns a store error into a catalog error. Returning nil means
// the handler does not cover this error.
type CodeHandler func(*pq.Error) error

// SQLErrors translates store errors raised below it through a per-route table
// keyed by condition name. Store errors the table does not cover become
// database_error; everything else passes through.
func SQLErrors(table map[string]CodeHandler) Middleware {
	return func(next Handler) Handler {
		return func(req *Request) (any, error) {
			val, err := next(req)
			if err == nil {
				return val, nil
			}
			var pqErr *pq.Error
			if !errors.As(err, &pqErr) {
				return nil, err
			}
			if h, ok := table[Condition(pqErr)]; ok {
				if translated := h(pqErr); translated != nil {
					return nil, translated
				}
			}
			req.Log.Error("DATABASE", fmt.Sprintf("request %s %s %s: table=%s %s (%s) constraint=%q",
				req.ID, req.Method, req.URL.Path, pqErr.Table, pqErr.Message, pqErr.Code, pqErr.Constraint))
			return nil, apierr.DatabaseError()
		}
	}
}

// ByConstraint picks the translation by constraint name.
func ByConstraint(m map[string]func() *apierr.Error) CodeHandler {
	return func(e *pq.Error) error {
		if f, ok := m[e.Constraint]; ok {
			return f()
		}
		return nil
	}
}

// FailWith translates every error of the condition the same way.
func FailWith(f func() *apierr.Error) CodeHandler {
	return func(*pq.Error) error { return f() }
}
