package mapper

import (
	"database/sql"
	"iter"
)

// Cursor streams adapted records from an open result set. It is single-pass:
// once drained or closed it yields nothing more.
type Cursor[T any, P RecordPtr[T]] struct {
	rows *sql.Rows
	cols []string
	m    *Mapper[T, P]
	cur  P
	err  error
}

func (c *Cursor[T, P]) Next() bool {
	if c.rows == nil || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.Close()
		return false
	}
	row, err := scanRow(c.rows, c.cols)
	if err != nil {
		c.err = err
		c.Close()
		return false
	}
	e := P(new(T))
	if err := c.m.Adapt(e, row); err != nil {
		c.err = err
		c.Close()
		return false
	}
	c.cur = e
	return true
}

func (c *Cursor[T, P]) Entity() P {
	return c.cur
}

func (c *Cursor[T, P]) Err() error {
	return c.err
}

func (c *Cursor[T, P]) Close() error {
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	return err
}

// All yields each record; a failure is yielded once with a nil record.
func (c *Cursor[T, P]) All() iter.Seq2[P, error] {
	return func(yield func(P, error) bool) {
		defer c.Close()
		for c.Next() {
			if !yield(c.cur, nil) {
				return
			}
		}
		if c.err != nil {
			yield(nil, c.err)
		}
	}
}

func (c *Cursor[T, P]) Collect() ([]P, error) {
	var out []P
	for e, err := range c.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
