package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-nft-market/internal/domain"
)

func seqEvent(seq uint64, kind domain.EventKind) domain.Event {
	e := domain.Event{Kind: kind, RecordID: domain.RecordID(seq)}
	e.Seq = seq
	return e
}

func TestBus_TopicRouting(t *testing.T) {
	bus := NewBus(nil)

	var all, bought []uint64
	_, err := bus.Subscribe(TopicAll, func(e domain.Event) { all = append(all, e.Seq) })
	require.NoError(t, err)
	_, err = bus.Subscribe(Topic(domain.EventItemBought), func(e domain.Event) { bought = append(bought, e.Seq) })
	require.NoError(t, err)

	bus.Publish(seqEvent(1, domain.EventItemListed))
	bus.Publish(seqEvent(2, domain.EventItemBought))
	bus.Publish(seqEvent(3, domain.EventItemSoldOut))

	assert.Equal(t, []uint64{1, 2, 3}, all)
	assert.Equal(t, []uint64{2}, bought)
}

func TestBus_UnsubscribeIsPrecise(t *testing.T) {
	bus := NewBus(nil)

	counts := make([]int, 3)
	var unsubs []func()
	for i := range counts {
		i := i
		unsub, err := bus.Subscribe(TopicAll, func(domain.Event) { counts[i]++ })
		require.NoError(t, err)
		unsubs = append(unsubs, unsub)
	}

	unsubs[1]()
	unsubs[1]() // idempotent
	bus.Publish(seqEvent(1, domain.EventRecordCreated))

	assert.Equal(t, []int{1, 0, 1}, counts)
	assert.Equal(t, 2, bus.Subscribers(TopicAll))
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus(nil)

	var got []uint64
	var unsub func()
	unsub, err := bus.Subscribe(TopicAll, func(e domain.Event) {
		got = append(got, e.Seq)
		unsub()
	})
	require.NoError(t, err)

	bus.Publish(seqEvent(1, domain.EventItemListed))
	bus.Publish(seqEvent(2, domain.EventItemListed))

	assert.Equal(t, []uint64{1}, got)
	assert.Zero(t, bus.Subscribers(TopicAll))
}

func TestBus_NilHandler(t *testing.T) {
	_, err := NewBus(nil).Subscribe(TopicAll, nil)
	assert.Error(t, err)
}

func TestRecorder_Bounded(t *testing.T) {
	r := NewRecorder(3)
	for i := uint64(1); i <= 5; i++ {
		r.Record(seqEvent(i, domain.EventItemListed))
	}

	var seqs []uint64
	for _, e := range r.Events() {
		seqs = append(seqs, e.Seq)
	}
	assert.Equal(t, []uint64{3, 4, 5}, seqs)
	assert.Equal(t, 3, r.Len())

	since := r.Since(3)
	require.Len(t, since, 2)
	assert.Equal(t, uint64(4), since[0].Seq)
}

func TestRecorder_Attach(t *testing.T) {
	bus := NewBus(nil)
	r := NewRecorder(10)
	detach, err := r.Attach(bus)
	require.NoError(t, err)

	bus.Publish(seqEvent(1, domain.EventRecordCreated))
	detach()
	bus.Publish(seqEvent(2, domain.EventRecordCreated))

	assert.Equal(t, 1, r.Len())
}
