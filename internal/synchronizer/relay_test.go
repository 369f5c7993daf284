package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/store"
	"github.com/roach88/revgraph/internal/syncqueue"
)

// recordingTransport records sends and can fail a chosen number of them.
type recordingTransport struct {
	mu     sync.Mutex
	sent   map[string][]ir.Message
	failAt int // fail the send with this 1-based index, 0 never
	count  int
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{sent: make(map[string][]ir.Message)}
}

func (r *recordingTransport) Send(_ context.Context, client, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count++
	if r.count == r.failAt {
		return errors.New("connection reset")
	}
	m, err := ir.DecodeMessage(text)
	if err != nil {
		return err
	}
	r.sent[client] = append(r.sent[client], m)
	return nil
}

func (r *recordingTransport) messages(client string) []ir.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.Message(nil), r.sent[client]...)
}

func newTestRelay(t *testing.T) (*Relay, *recordingTransport, *store.Store, *syncqueue.Queue) {
	t.Helper()
	srv, s, q := newTestServer(t)
	tr := newRecordingTransport()
	return NewRelay(srv, q, tr, WithRelayLogger(discardLogger())), tr, s, q
}

func TestRelay_PumpAppliesAndDelivers(t *testing.T) {
	relay, tr, s, _ := newTestRelay(t)
	ctx := context.Background()

	require.NoError(t, relay.Connect(ctx, "c1"))
	require.NoError(t, relay.Connect(ctx, "c2"))

	relay.Receive("c1", commitText(t, ir.None, 1))
	require.NoError(t, relay.Pump(ctx))

	latest, err := s.LatestRevisionNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.RevisionNumber(1), latest)

	for _, client := range []string{"c1", "c2"} {
		msgs := tr.messages(client)
		require.Len(t, msgs, 2, client)
		assert.Equal(t, ir.MessageSetup, msgs[0].Type)
		assert.Equal(t, ir.MessagePush, msgs[1].Type)
		assert.Equal(t, "c1", msgs[1].Revisions[0].Origin)
	}
}

func TestRelay_PausedBuffersBothDirections(t *testing.T) {
	relay, tr, s, q := newTestRelay(t)
	ctx := context.Background()

	require.NoError(t, relay.Connect(ctx, "c1"))
	require.NoError(t, relay.SetPaused(ctx, true))
	assert.True(t, relay.Paused())

	relay.Receive("c1", commitText(t, ir.None, 1))
	relay.Receive("c2", commitText(t, ir.None, 2))
	require.NoError(t, relay.Pump(ctx))

	assert.Empty(t, tr.messages("c1"), "nothing delivered while paused")
	assert.Equal(t, 2, q.IncomingLen())
	latest, err := s.LatestRevisionNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.None, latest, "nothing applied while paused")

	require.NoError(t, relay.SetPaused(ctx, false))

	msgs := tr.messages("c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, ir.MessageSetup, msgs[0].Type)
	assert.Equal(t, "c1", msgs[1].Revisions[0].Origin)
	assert.Equal(t, "c2", msgs[2].Revisions[0].Origin, "arrival order kept across the pause")
}

func TestRelay_SendFailureRequeuesInOrder(t *testing.T) {
	relay, tr, _, q := newTestRelay(t)
	ctx := context.Background()

	require.NoError(t, relay.Connect(ctx, "c1"))
	relay.Receive("c1", commitText(t, ir.None, 1))
	relay.Receive("c1", commitText(t, ir.None, 2))
	tr.failAt = 2

	require.NoError(t, relay.Pump(ctx))
	assert.Len(t, tr.messages("c1"), 1, "setup went out before the failure")
	assert.Equal(t, 2, q.OutgoingLen("c1"))

	require.NoError(t, relay.Pump(ctx))
	msgs := tr.messages("c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, ir.RevisionNumber(1), msgs[1].Revisions[0].Number)
	assert.Equal(t, ir.RevisionNumber(2), msgs[2].Revisions[0].Number)
}

func TestRelay_SkipsRejectedMessages(t *testing.T) {
	relay, tr, s, _ := newTestRelay(t)
	ctx := context.Background()

	require.NoError(t, relay.Connect(ctx, "c1"))
	relay.Receive("c1", "garbage")
	relay.Receive("c1", commitText(t, ir.None, 1))

	require.NoError(t, relay.Pump(ctx))

	msgs := tr.messages("c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, ir.MessageError, msgs[1].Type)
	assert.Equal(t, ir.MessagePush, msgs[2].Type)

	latest, err := s.LatestRevisionNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.RevisionNumber(1), latest)
}

func TestRelay_DisconnectDropsQueue(t *testing.T) {
	relay, tr, _, q := newTestRelay(t)
	ctx := context.Background()

	require.NoError(t, relay.Connect(ctx, "c1"))
	relay.Disconnect("c1")

	assert.Equal(t, 0, q.OutgoingLen("c1"))
	require.NoError(t, relay.Pump(ctx))
	assert.Empty(t, tr.messages("c1"))
}

// failingStore fails Append while fail is set.
type failingStore struct {
	*store.Store
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *failingStore) Append(ctx context.Context, rev ir.Revision) (ir.Revision, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return ir.Revision{}, errors.New("disk I/O error")
	}
	return f.Store.Append(ctx, rev)
}

func TestRelay_StoreErrorKeepsIncomingForRetry(t *testing.T) {
	s := &failingStore{Store: openStore(t)}
	q := syncqueue.New()
	srv := NewServer(s, q, WithServerLogger(discardLogger()))
	tr := newRecordingTransport()
	relay := NewRelay(srv, q, tr, WithRelayLogger(discardLogger()))
	ctx := context.Background()

	require.NoError(t, relay.Connect(ctx, "c1"))
	require.NoError(t, relay.Connect(ctx, "c2"))

	relay.Receive("c1", commitText(t, ir.None, 1))
	relay.Receive("c2", commitText(t, ir.None, 2))

	s.setFail(true)
	require.Error(t, relay.Pump(ctx))
	assert.Equal(t, 2, q.IncomingLen(), "nothing applied, nothing lost")

	latest, err := s.LatestRevisionNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.None, latest)

	s.setFail(false)
	require.NoError(t, relay.Pump(ctx))
	assert.Zero(t, q.IncomingLen())

	r1, err := s.RevisionByNumber(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "c1", r1.Origin)
	r2, err := s.RevisionByNumber(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "c2", r2.Origin, "arrival order survives the retry")

	msgs := tr.messages("c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, ir.RevisionNumber(1), msgs[1].Revisions[0].Number)
	assert.Equal(t, ir.RevisionNumber(2), msgs[2].Revisions[0].Number)
}
