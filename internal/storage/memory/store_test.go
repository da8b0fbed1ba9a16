package memory

import (
	"context"
	"errors"
	"testing"

	"flowsplit/internal/model"
	"flowsplit/internal/storage"
)

func TestWithTxRollback(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := store.SaveFlowSplitter(ctx, model.FlowSplitter{ID: "0xa", SideReceiverPortion: 100}); err != nil {
		t.Fatalf("save: %v", err)
	}

	err := store.WithTx(ctx, func(tx storage.Store) error {
		if err := tx.SaveEvent(ctx, model.SplitUpdatedEvent{Event: model.Event{ID: "SplitUpdated-0x1-0"}}); err != nil {
			return err
		}
		if err := tx.SaveFlowSplitter(ctx, model.FlowSplitter{ID: "0xa", SideReceiverPortion: 900}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected error")
	}

	splitter, ok, _ := store.GetFlowSplitter(ctx, "0xa")
	if !ok || splitter.SideReceiverPortion != 100 {
		t.Fatalf("rollback failed: %+v", splitter)
	}
	if store.EventCount() != 0 {
		t.Fatalf("event should be rolled back")
	}
}

func TestWithTxCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	err := store.WithTx(ctx, func(tx storage.Store) error {
		return tx.SaveStream(ctx, model.Stream{ID: "s"})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := store.GetStream(ctx, "s"); !ok {
		t.Fatalf("stream not committed")
	}
}

func TestAddDataSourceKeepsEarliestBlock(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.AddDataSource(ctx, "0xa", 200)
	_ = store.AddDataSource(ctx, "0xa", 100)
	_ = store.AddDataSource(ctx, "0xa", 300)

	sources, err := store.DataSources(ctx)
	if err != nil {
		t.Fatalf("data sources: %v", err)
	}
	if sources["0xa"] != 100 {
		t.Fatalf("start block mismatch: %d", sources["0xa"])
	}
}

func TestListFlowSplittersOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.SaveFlowSplitter(ctx, model.FlowSplitter{ID: "0xc", CreatedAtBlockNumber: 5})
	_ = store.SaveFlowSplitter(ctx, model.FlowSplitter{ID: "0xb", CreatedAtBlockNumber: 1})
	_ = store.SaveFlowSplitter(ctx, model.FlowSplitter{ID: "0xa", CreatedAtBlockNumber: 5})

	list, _ := store.ListFlowSplitters(ctx)
	if len(list) != 3 || list[0].ID != "0xb" || list[1].ID != "0xa" || list[2].ID != "0xc" {
		t.Fatalf("order mismatch: %+v", list)
	}
}

func TestWithTxReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.SaveFlowSplitter(ctx, model.FlowSplitter{ID: "0xa", CreatedAtBlockNumber: 1})

	err := store.WithTx(ctx, func(tx storage.Store) error {
		if err := tx.SaveFlowSplitter(ctx, model.FlowSplitter{ID: "0xb", CreatedAtBlockNumber: 2}); err != nil {
			return err
		}
		if _, ok, _ := tx.GetFlowSplitter(ctx, "0xb"); !ok {
			t.Fatalf("pending write not visible inside transaction")
		}
		if _, ok, _ := store.GetFlowSplitter(ctx, "0xb"); ok {
			t.Fatalf("pending write visible outside transaction")
		}
		list, err := tx.ListFlowSplitters(ctx)
		if err != nil {
			return err
		}
		if len(list) != 2 || list[1].ID != "0xb" {
			t.Fatalf("merged list mismatch: %+v", list)
		}
		return tx.AddDataSource(ctx, "0xb", 2)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sources, _ := store.DataSources(ctx)
	if sources["0xb"] != 2 {
		t.Fatalf("data source not committed: %+v", sources)
	}
}
