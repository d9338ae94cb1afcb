package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/program"
	"github.com/ssargent/tweetdb/pkg/query"
	"github.com/ssargent/tweetdb/pkg/storage"
	"github.com/ssargent/tweetdb/pkg/store"
)

func newLedger(t *testing.T, cfg Config, opts ...Option) *Ledger {
	t.Helper()
	l := New(program.NewHandler(store.New(storage.NewMemoryBackend())), cfg, opts...)
	t.Cleanup(func() { l.Close() })
	return l
}

func keypair(t *testing.T) *identity.Keypair {
	t.Helper()
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func signed(t *testing.T, ix program.Instruction, kps ...*identity.Keypair) *Transaction {
	t.Helper()
	tx := NewTransaction(ix)
	require.NoError(t, tx.Sign(kps...))
	return tx
}

func TestTransaction_SignAndVerify(t *testing.T) {
	owner, record := keypair(t), keypair(t)

	tx := signed(t, program.Create(record.PublicKey(), owner.PublicKey(), "t", "c"), owner, record)
	signers, err := tx.Verify()
	require.NoError(t, err)
	assert.True(t, signers.Has(owner.PublicKey()))
	assert.True(t, signers.Has(record.PublicKey()))
	assert.Equal(t, tx.Signatures[0].Signature, tx.Signature())

	// tampering with the instruction invalidates the signatures
	tx.Instruction.Content = "changed"
	_, err = tx.Verify()
	assert.Equal(t, fault.MissingSignature, fault.KindOf(err))
}

func TestTransaction_JSON(t *testing.T) {
	owner, record := keypair(t), keypair(t)
	tx := signed(t, program.Update(record.PublicKey(), owner.PublicKey(), "topic", "body"), owner)

	data, err := json.Marshal(tx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"update_tweet"`)
	assert.Contains(t, string(data), `"owner":"`+owner.PublicKey().String()+`"`)

	var decoded Transaction
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, tx.Instruction, decoded.Instruction)
	assert.Equal(t, tx.Signatures, decoded.Signatures)

	signers, err := decoded.Verify()
	require.NoError(t, err)
	assert.True(t, signers.Has(owner.PublicKey()))

	err = json.Unmarshal([]byte(`{"kind":"read_tweet"}`), &decoded)
	assert.Equal(t, fault.InvalidInstruction, fault.KindOf(err))

	err = json.Unmarshal([]byte(`{"kind":"create","record":"not-base58!"}`), &decoded)
	assert.Equal(t, fault.InvalidInstruction, fault.KindOf(err))
}

func TestLedger_SubmitLifecycle(t *testing.T) {
	l := newLedger(t, Config{})
	ctx := context.Background()
	owner, record := keypair(t), keypair(t)

	receipt, err := l.Submit(ctx, signed(t, program.Create(record.PublicKey(), owner.PublicKey(), "topic", "hello"), owner, record))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Slot)
	assert.Equal(t, CommitmentProcessed, receipt.Commitment)
	assert.Equal(t, "create_tweet", receipt.Kind)
	assert.False(t, receipt.ID.IsNil())
	require.NotNil(t, receipt.Record)
	assert.Equal(t, "hello", receipt.Record.Content)

	got, err := l.Fetch(ctx, record.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, owner.PublicKey(), got.Owner)

	receipt, err = l.Submit(ctx, signed(t, program.Update(record.PublicKey(), owner.PublicKey(), "topic", "edited"), owner))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), receipt.Slot)
	assert.Equal(t, "edited", receipt.Record.Content)

	receipt, err = l.Submit(ctx, signed(t, program.Delete(record.PublicKey(), owner.PublicKey()), owner))
	require.NoError(t, err)
	assert.Nil(t, receipt.Record)

	_, err = l.Fetch(ctx, record.PublicKey())
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
	assert.Equal(t, Stats{Records: 0, Slot: 3}, l.Stats())
}

func TestLedger_Rejections(t *testing.T) {
	l := newLedger(t, Config{Commitment: CommitmentConfirmed})
	ctx := context.Background()
	owner, record, intruder := keypair(t), keypair(t), keypair(t)

	// record keypair did not co-sign
	_, err := l.Submit(ctx, signed(t, program.Create(record.PublicKey(), owner.PublicKey(), "t", "c"), owner))
	assert.Equal(t, fault.MissingSignature, fault.KindOf(err))

	_, err = l.Submit(ctx, signed(t, program.Create(record.PublicKey(), owner.PublicKey(), "t", "c"), owner, record))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = l.Submit(ctx, signed(t, program.Update(record.PublicKey(), intruder.PublicKey(), "x", "y"), intruder))
		assert.Equal(t, fault.NotOwner, fault.KindOf(err))

		_, err = l.Submit(ctx, signed(t, program.Delete(record.PublicKey(), intruder.PublicKey()), intruder))
		assert.Equal(t, fault.NotOwner, fault.KindOf(err))
	}

	got, err := l.Fetch(ctx, record.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, "c", got.Content)

	_, err = l.Submit(ctx, NewTransaction(program.Read(record.PublicKey())))
	assert.Equal(t, fault.InvalidInstruction, fault.KindOf(err))

	// rejected transactions do not consume slots
	assert.Equal(t, uint64(1), l.Stats().Slot)
}

func TestLedger_Scan(t *testing.T) {
	l := newLedger(t, Config{})
	ctx := context.Background()
	a, b := keypair(t), keypair(t)

	for _, post := range []struct {
		owner *identity.Keypair
		topic string
	}{{a, "topic"}, {a, "topic"}, {b, "other"}} {
		rec := keypair(t)
		_, err := l.Submit(ctx, signed(t, program.Create(rec.PublicKey(), post.owner.PublicKey(), post.topic, "body"), post.owner, rec))
		require.NoError(t, err)
	}

	records, err := l.Scan(ctx, query.OwnerIs(a.PublicKey()))
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = l.Scan(ctx, query.TopicEquals("other"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, b.PublicKey(), records[0].Owner)

	_, err = l.Scan(ctx, query.Memcmp{Offset: 8})
	assert.Equal(t, fault.InvalidFilter, fault.KindOf(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = l.Scan(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLedger_LockTimeout(t *testing.T) {
	l := newLedger(t, Config{LockTimeout: 20 * time.Millisecond})
	owner, record := keypair(t), keypair(t)

	release, err := l.locks.acquire(context.Background(), record.PublicKey())
	require.NoError(t, err)

	_, err = l.Submit(context.Background(), signed(t, program.Create(record.PublicKey(), owner.PublicKey(), "t", "c"), owner, record))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	release()
	_, err = l.Submit(context.Background(), signed(t, program.Create(record.PublicKey(), owner.PublicKey(), "t", "c"), owner, record))
	require.NoError(t, err)
	assert.Equal(t, 0, l.locks.size())
}

func TestLedger_ConcurrentUpdatesSameRecord(t *testing.T) {
	l := newLedger(t, Config{})
	ctx := context.Background()
	owner, record := keypair(t), keypair(t)

	_, err := l.Submit(ctx, signed(t, program.Create(record.PublicKey(), owner.PublicKey(), "t", "0"), owner, record))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := NewTransaction(program.Update(record.PublicKey(), owner.PublicKey(), "t", "n"))
			if assert.NoError(t, tx.Sign(owner)) {
				_, err := l.Submit(ctx, tx)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(26), l.Stats().Slot)
	assert.Equal(t, 0, l.locks.size())
}

func TestLedger_Observer(t *testing.T) {
	var mu sync.Mutex
	seen := map[program.Kind][]program.Phase{}
	l := newLedger(t, Config{}, WithObserver(func(kind program.Kind, out program.Outcome, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		seen[kind] = append(seen[kind], out.Phase)
	}))
	owner, record := keypair(t), keypair(t)

	_, err := l.Submit(context.Background(), signed(t, program.Create(record.PublicKey(), owner.PublicKey(), "t", "c"), owner, record))
	require.NoError(t, err)
	_, err = l.Fetch(context.Background(), owner.PublicKey())
	require.Error(t, err)

	assert.Equal(t, []program.Phase{program.PhaseApplied}, seen[program.KindCreate])
	assert.Equal(t, []program.Phase{program.PhaseRejected}, seen[program.KindRead])
}
