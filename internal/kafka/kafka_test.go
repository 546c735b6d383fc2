package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/notify"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader replays msgs, then blocks until the context ends.
type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestProducerPublishesClaim(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Writer: w, Topic: "bazaar.claims.received", log: logger.New(io.Discard)}

	n := notify.ClaimNotice{CheckoutID: 3, ListingID: 12, EventTitle: "Spoon"}
	require.NoError(t, p.ClaimReceived(context.Background(), n))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "12", string(w.msgs[0].Key))
	assert.Equal(t, "claim.received", string(w.msgs[0].Headers[0].Value))

	var decoded notify.ClaimNotice
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, n.CheckoutID, decoded.CheckoutID)
	assert.Equal(t, "Spoon", decoded.EventTitle)

	w.err = errors.New("leader not available")
	assert.Error(t, p.ClaimReceived(context.Background(), n))
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	good, _ := json.Marshal(notify.ClaimNotice{CheckoutID: 1})
	failing, _ := json.Marshal(notify.ClaimNotice{CheckoutID: 2})
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 10, Value: good},
		{Offset: 11, Value: []byte("{not json")},
		{Offset: 12, Value: failing},
	}}
	c := &Consumer{reader: r, log: logger.New(io.Discard)}

	ctx, cancel := context.WithCancel(context.Background())
	var handled []int64
	handler := notify.NotifierFunc(func(_ context.Context, n notify.ClaimNotice) error {
		handled = append(handled, n.CheckoutID)
		if n.CheckoutID == 2 {
			defer cancel()
			return errors.New("smtp down")
		}
		return nil
	})

	require.NoError(t, c.Run(ctx, handler))
	assert.Equal(t, []int64{1, 2}, handled)
	assert.Equal(t, []int64{10, 11}, r.committed)
}
