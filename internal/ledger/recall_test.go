package ledger

import (
	"errors"
	"sort"
	"testing"
	"time"

	"smokehouse/models"
)

func TestRecallFlagsEveryConsumingBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.allocate(t, testBatchA, 100, "g")
	f.allocate(t, testBatchA, 20, "g")
	f.allocate(t, testBatchB, 50, "g")

	res, err := f.ledger.RecallLot(f.ctx, RecallRequest{LotID: testLotID, Reason: "supplier nitrite assay out of range"})
	if err != nil {
		t.Fatalf("RecallLot() error = %v", err)
	}
	if res.AlreadyRecalled || !res.Notified {
		t.Fatalf("result = %+v", res)
	}
	got := append([]string(nil), res.AffectedBatchIDs...)
	sort.Strings(got)
	if len(got) != 2 || got[0] != testBatchA || got[1] != testBatchB {
		t.Fatalf("AffectedBatchIDs = %v, want both batches once", got)
	}

	lot := f.lot(t)
	if lot.Status != models.LotStatusRecalled || lot.CurrentBalance != 830 {
		t.Fatalf("lot = %s %v, want recalled with balance untouched", lot.Status, lot.CurrentBalance)
	}
	for _, id := range []string{testBatchA, testBatchB} {
		batch, err := f.store.GetBatch(f.ctx, id)
		if err != nil {
			t.Fatalf("GetBatch(%s) error = %v", id, err)
		}
		if batch.ReleaseStatus != models.ReleaseStatusRecalled {
			t.Fatalf("batch %s release status = %q", id, batch.ReleaseStatus)
		}
	}

	events := f.events(t)
	last := events[len(events)-1]
	if last.Type != models.LotEventRecall || last.Delta != 0 || last.ResultingBalance != 830 {
		t.Fatalf("recall event = %+v", last)
	}

	if len(f.notifier.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(f.notifier.notices))
	}
	notice := f.notifier.notices[0]
	if notice.LotID != testLotID || notice.RecallID != res.Recall.ID || len(notice.BatchIDs) != 2 {
		t.Fatalf("notice = %+v", notice)
	}
	f.assertConsistent(t)
}

func TestRecallIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.allocate(t, testBatchA, 100, "g")

	first, err := f.ledger.RecallLot(f.ctx, RecallRequest{LotID: testLotID, Reason: "first"})
	if err != nil {
		t.Fatalf("RecallLot() error = %v", err)
	}
	second, err := f.ledger.RecallLot(f.ctx, RecallRequest{LotID: testLotID, Reason: "second"})
	if err != nil {
		t.Fatalf("second RecallLot() error = %v", err)
	}
	if !second.AlreadyRecalled || second.Recall == nil || second.Recall.ID != first.Recall.ID {
		t.Fatalf("second = %+v, want the first recall back", second)
	}
	if second.Recall.Reason != "first" || len(second.AffectedBatchIDs) != 1 {
		t.Fatalf("second recall = %+v", second.Recall)
	}
	if n := f.countUnscoped(t, &models.Recall{}); n != 1 {
		t.Fatalf("recalls = %d, want 1", n)
	}
	if len(f.events(t)) != 2 {
		t.Fatal("second recall must not write an event")
	}
	if len(f.notifier.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(f.notifier.notices))
	}
}

func TestRecallWithoutAllocations(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	res, err := f.ledger.RecallLot(f.ctx, RecallRequest{LotID: testLotID})
	if err != nil {
		t.Fatalf("RecallLot() error = %v", err)
	}
	if len(res.AffectedBatchIDs) != 0 || res.Recall == nil {
		t.Fatalf("result = %+v", res)
	}
	if _, err := f.ledger.RecallLot(f.ctx, RecallRequest{LotID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing lot err = %v, want ErrNotFound", err)
	}
}

func TestRecallCompensatesWhenBatchFlagFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.allocate(t, testBatchA, 100, "g")
	f.allocate(t, testBatchB, 100, "g")
	f.faulty.flagErr = map[string]error{testBatchB: errors.New("lock timeout")}

	_, err := f.ledger.RecallLot(f.ctx, RecallRequest{LotID: testLotID})
	if !errors.Is(err, ErrPartialFailureCompensated) {
		t.Fatalf("err = %v, want ErrPartialFailureCompensated", err)
	}

	if lot := f.lot(t); lot.Status != models.LotStatusActive {
		t.Fatalf("lot status = %q, want active after rollback", lot.Status)
	}
	for _, id := range []string{testBatchA, testBatchB} {
		batch, err := f.store.GetBatch(f.ctx, id)
		if err != nil {
			t.Fatalf("GetBatch(%s) error = %v", id, err)
		}
		if batch.ReleaseStatus != models.ReleaseStatusPending {
			t.Fatalf("batch %s release status = %q, want pending", id, batch.ReleaseStatus)
		}
	}
	if n := f.countUnscoped(t, &models.Recall{}); n != 0 {
		t.Fatalf("recalls = %d, want 0", n)
	}
	if n := f.countUnscoped(t, &models.RecallBatch{}); n != 0 {
		t.Fatalf("recall batches = %d, want 0", n)
	}
	if len(f.notifier.notices) != 0 {
		t.Fatal("rolled back recall must not be announced")
	}
	f.assertConsistent(t)
}

func TestRecallRollbackKeepsFlagsOfOtherRecalls(t *testing.T) {
	t.Parallel()

	const otherLotID = "lot-cure-spare"
	f := newFixture(t, Config{Now: steppingClock()})
	other := &models.Lot{
		ID:               otherLotID,
		MaterialID:       testCureID,
		LotNumber:        "HS-24-011",
		ReceivedAt:       time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC),
		ReceivedQuantity: 500,
		CurrentBalance:   500,
		Unit:             "g",
	}
	if err := f.db.Create(other).Error; err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	f.allocate(t, testBatchA, 25, "g")
	for _, batchID := range []string{testBatchA, testBatchB} {
		if _, err := f.ledger.Allocate(f.ctx, AllocateRequest{BatchID: batchID, LotID: otherLotID, Quantity: 10}); err != nil {
			t.Fatalf("Allocate(%s) error = %v", batchID, err)
		}
	}

	f.faulty.flagErr = map[string]error{testBatchB: errors.New("lock timeout")}
	var innerErr error
	f.faulty.beforeRecall = func() {
		_, innerErr = f.ledger.RecallLot(f.ctx, RecallRequest{LotID: testLotID, Reason: "assay"})
	}

	_, err := f.ledger.RecallLot(f.ctx, RecallRequest{LotID: otherLotID, Reason: "label"})
	if innerErr != nil {
		t.Fatalf("inner RecallLot() error = %v", innerErr)
	}
	if !errors.Is(err, ErrPartialFailureCompensated) {
		t.Fatalf("err = %v, want ErrPartialFailureCompensated", err)
	}

	want := map[string]string{
		testBatchA: models.ReleaseStatusRecalled,
		testBatchB: models.ReleaseStatusPending,
	}
	for id, status := range want {
		batch, err := f.store.GetBatch(f.ctx, id)
		if err != nil {
			t.Fatalf("GetBatch(%s) error = %v", id, err)
		}
		if batch.ReleaseStatus != status {
			t.Fatalf("batch %s release status = %q, want %q", id, batch.ReleaseStatus, status)
		}
	}
	if lot := f.lot(t); lot.Status != models.LotStatusRecalled {
		t.Fatalf("lot %s status = %q, want recalled", testLotID, lot.Status)
	}
	spare, err := f.store.GetLot(f.ctx, otherLotID)
	if err != nil {
		t.Fatalf("GetLot() error = %v", err)
	}
	if spare.Status != models.LotStatusActive {
		t.Fatalf("lot %s status = %q, want active after rollback", otherLotID, spare.Status)
	}
}

func TestRecallSurvivesNotifierFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.notifier.err = errors.New("broker unavailable")

	res, err := f.ledger.RecallLot(f.ctx, RecallRequest{LotID: testLotID})
	if err != nil {
		t.Fatalf("RecallLot() error = %v", err)
	}
	if res.Notified {
		t.Fatal("Notified = true, want false")
	}
	if lot := f.lot(t); lot.Status != models.LotStatusRecalled {
		t.Fatalf("lot status = %q", lot.Status)
	}
}

func TestRemoveLotCascades(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	alloc := f.allocate(t, testBatchA, 100, "g")
	f.allocate(t, testBatchB, 100, "g")
	if _, err := f.ledger.Reverse(f.ctx, ReverseRequest{AllocationID: alloc.AllocationID}); err != nil {
		t.Fatalf("Reverse() error = %v", err)
	}
	if _, err := f.ledger.RecallLot(f.ctx, RecallRequest{LotID: testLotID}); err != nil {
		t.Fatalf("RecallLot() error = %v", err)
	}

	if err := f.ledger.RemoveLot(f.ctx, testLotID); err != nil {
		t.Fatalf("RemoveLot() error = %v", err)
	}

	for _, model := range []any{&models.Lot{}, &models.Allocation{}, &models.LotEvent{}, &models.Recall{}, &models.RecallBatch{}} {
		if n := f.countUnscoped(t, model); n != 0 {
			t.Fatalf("%T rows = %d, want 0", model, n)
		}
	}
	if n := f.countUnscoped(t, &models.Batch{}); n != 2 {
		t.Fatalf("batches = %d, want them kept", n)
	}
	if err := f.ledger.RemoveLot(f.ctx, testLotID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second RemoveLot() err = %v, want ErrNotFound", err)
	}
}

func TestReconcileDetectsTamperedEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{AuditKey: []byte("smokehouse-audit")})
	res := f.allocate(t, testBatchA, 100, "g")

	err := f.db.Model(&models.LotEvent{}).Where("id = ?", res.EventID).Update("reason", "edited later").Error
	if err != nil {
		t.Fatalf("tamper: %v", err)
	}

	rec, err := f.ledger.Reconcile(f.ctx, testLotID)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if rec.AuditConsistent || len(rec.InvalidDigests) != 1 || rec.InvalidDigests[0] != res.EventID {
		t.Fatalf("reconciliation = %+v, want tampered event reported", rec)
	}
	if !rec.BalanceConsistent {
		t.Fatal("balance is untouched and should still reconcile")
	}
}

func TestReconcileDetectsBalanceDrift(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.allocate(t, testBatchA, 100, "g")

	if err := f.db.Model(&models.Lot{}).Where("id = ?", testLotID).Update("current_balance", 950).Error; err != nil {
		t.Fatalf("drift: %v", err)
	}

	recs, err := f.ledger.ReconcileAll(f.ctx)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("reconciliations = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.BalanceConsistent || rec.AuditConsistent || rec.Drift != 50 || rec.Expected != 900 {
		t.Fatalf("reconciliation = %+v, want 50 g drift", rec)
	}
}

func TestDigestDependsOnKey(t *testing.T) {
	t.Parallel()

	a, _ := newAuditor([]byte("one"))
	b, _ := newAuditor([]byte("two"))
	batch := testBatchA
	e := &models.LotEvent{ID: "e1", LotID: testLotID, Type: models.LotEventConsume, Delta: 5, ResultingBalance: 995, Unit: "g", BatchID: &batch}
	a.seal(e)

	if !a.verify(e) {
		t.Fatal("digest does not verify under its own key")
	}
	if b.verify(e) {
		t.Fatal("digest verified under a different key")
	}
	e.Delta = 6
	if a.verify(e) {
		t.Fatal("digest verified after delta changed")
	}
}
