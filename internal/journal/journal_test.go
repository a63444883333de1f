package journal

import (
	"testing"

	"file-nft-market/internal/domain"
)

func TestJournal_RollbackRunsInReverse(t *testing.T) {
	j := New()
	var order []int
	j.OnUndo(func() { order = append(order, 1) })
	j.OnUndo(func() { order = append(order, 2) })
	j.OnUndo(func() { order = append(order, 3) })

	j.Rollback()

	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("undo order = %v, want [3 2 1]", order)
	}
}

func TestJournal_RollbackDropsEventsAndDirty(t *testing.T) {
	j := New()
	j.Emit(domain.RecordCreated(0))
	j.TouchRecord(0)
	j.TouchMeta()

	j.Rollback()

	if len(j.Events()) != 0 {
		t.Errorf("expected no events after rollback, got %d", len(j.Events()))
	}
	d := j.Dirty()
	if len(d.Records) != 0 || d.Meta {
		t.Errorf("expected clean dirty set after rollback, got %+v", d)
	}

	// Keys can be touched again after rollback.
	j.TouchRecord(0)
	if len(j.Dirty().Records) != 1 {
		t.Errorf("expected record to be re-tracked after rollback")
	}
}

func TestJournal_TouchDeduplicates(t *testing.T) {
	j := New()
	holder := domain.AddressFromBytes(make([]byte, 32))
	key := domain.ListingKey{Seller: holder, RecordID: 1}

	for i := 0; i < 3; i++ {
		j.TouchBalance(1, holder)
		j.TouchListing(key)
		j.TouchProceeds(holder)
		j.TouchApproval(holder, holder)
	}

	d := j.Dirty()
	if len(d.Balances) != 1 || len(d.Listings) != 1 || len(d.Proceeds) != 1 || len(d.Approvals) != 1 {
		t.Errorf("expected one entry per key, got %+v", d)
	}
}

func TestJournal_EventsKeepEmissionOrder(t *testing.T) {
	j := New()
	seller := domain.AddressFromBytes(make([]byte, 32))
	j.Emit(domain.ItemSoldOut(seller, 2))
	j.Emit(domain.ItemBought(seller, seller, 2, 5))

	events := j.Events()
	if events[0].Kind != domain.EventItemSoldOut || events[1].Kind != domain.EventItemBought {
		t.Errorf("unexpected event order: %v, %v", events[0].Kind, events[1].Kind)
	}
}
