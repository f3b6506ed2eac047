package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avelaine/stocktrack/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newOrderService(db *gorm.DB) *OrderService {
	return NewOrderService(db, NewCatalogReader())
}

func TestCreatePreparedOrderLeavesStockAlone(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)

	svc := newOrderService(db)
	order, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 2}},
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Status != models.OrderStatusPrepared {
		t.Fatalf("expected prepared, got %s", order.Status)
	}
	if order.Reference != "ORD-1" {
		t.Fatalf("expected ORD-1, got %s", order.Reference)
	}
	if order.PaidAt != nil {
		t.Fatalf("prepared order must not have paid_at")
	}
	if got := productQty(t, db, p.ID); got != 10 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
}

func TestCreatePaidOrderDecrementsAndSnapshotsPrice(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)

	svc := newOrderService(db)
	order, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		Status:   models.OrderStatusPaid,
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.PaidAt == nil {
		t.Fatalf("paid order must carry paid_at")
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(order.Items))
	}
	item := order.Items[0]
	if !item.UnitPriceTaxFree.Equal(dec("5.00")) {
		t.Fatalf("expected tax-free 5.00, got %s", item.UnitPriceTaxFree)
	}
	if !item.UnitPriceTaxIncluded.Equal(dec("6.00")) {
		t.Fatalf("expected tax-included 6.00, got %s", item.UnitPriceTaxIncluded)
	}
	if got := productQty(t, db, p.ID); got != 9 {
		t.Fatalf("expected quantity 9, got %d", got)
	}

	// later catalog price changes must not touch the snapshot
	if err := db.Model(&models.Product{}).Where("id = ?", p.ID).Update("price_tax_free", dec("99.00")).Error; err != nil {
		t.Fatalf("reprice: %v", err)
	}
	reloaded, err := svc.Get(context.Background(), user.ID, order.PublicID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reloaded.Items[0].UnitPriceTaxFree.Equal(dec("5.00")) {
		t.Fatalf("snapshot changed: %s", reloaded.Items[0].UnitPriceTaxFree)
	}
}

func TestCreatePaidBundleOrderExpandsComponents(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)
	b := seedBundle(t, db, user.ID, "B", 9.00, 20, models.BundleItem{ComponentID: p.ID, Quantity: 2})

	svc := newOrderService(db)
	_, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: b.ID, Quantity: 3}},
		Status:   models.OrderStatusPaid,
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// 3 x (2 x P) = 6 consumed
	if got := productQty(t, db, p.ID); got != 4 {
		t.Fatalf("expected quantity 4, got %d", got)
	}
	if got := productQty(t, db, b.ID); got != 0 {
		t.Fatalf("bundle stock must stay 0, got %d", got)
	}
}

func TestCreatePaidOrderInsufficientStockRollsBack(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 5, 5.00, 20)
	b := seedBundle(t, db, user.ID, "B", 9.00, 20, models.BundleItem{ComponentID: p.ID, Quantity: 2})

	svc := newOrderService(db)
	_, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: b.ID, Quantity: 3}}, // needs 6, only 5 on hand
		Status:   models.OrderStatusPaid,
		PrefixID: prefix.ID,
	})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.ProductID != p.ID {
		t.Fatalf("error must name the base product %d, got %d", p.ID, stockErr.ProductID)
	}
	if got := productQty(t, db, p.ID); got != 5 {
		t.Fatalf("stock must be unchanged, got %d", got)
	}
	var count int64
	db.Model(&models.Order{}).Count(&count)
	if count != 0 {
		t.Fatalf("no order must be created, found %d", count)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)

	svc := newOrderService(db)
	cases := []struct {
		name string
		in   CreateOrderInput
	}{
		{"no items", CreateOrderInput{PrefixID: prefix.ID}},
		{"zero quantity", CreateOrderInput{Items: []OrderItemInput{{ProductID: p.ID, Quantity: 0}}, PrefixID: prefix.ID}},
		{"duplicate product", CreateOrderInput{Items: []OrderItemInput{{ProductID: p.ID, Quantity: 1}, {ProductID: p.ID, Quantity: 2}}, PrefixID: prefix.ID}},
		{"no reference source", CreateOrderInput{Items: []OrderItemInput{{ProductID: p.ID, Quantity: 1}}}},
		{"sent status", CreateOrderInput{Items: []OrderItemInput{{ProductID: p.ID, Quantity: 1}}, Status: models.OrderStatusSent, PrefixID: prefix.ID}},
	}
	for _, c := range cases {
		_, err := svc.Create(context.Background(), user.ID, c.in)
		var v *ValidationError
		if !errors.As(err, &v) {
			t.Errorf("%s: expected ValidationError, got %v", c.name, err)
		}
	}
}

func TestCreateOrderArchivedProduct(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)
	if err := db.Model(&models.Product{}).Where("id = ?", p.ID).Update("archived_at", time.Now()).Error; err != nil {
		t.Fatalf("archive: %v", err)
	}

	svc := newOrderService(db)
	_, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		PrefixID: prefix.ID,
	})
	var archived *ArchivedProductError
	if !errors.As(err, &archived) {
		t.Fatalf("expected ArchivedProductError, got %v", err)
	}
}

func TestCreateOrderForeignProductNotFound(t *testing.T) {
	db := setupTestDB(t)
	owner := seedUser(t, db, "owner@test")
	other := seedUser(t, db, "other@test")
	prefix := seedPrefix(t, db, owner.ID, "ORD")
	theirs := seedSimple(t, db, other.ID, "THEIRS", 10, 5.00, 20)

	svc := newOrderService(db)
	_, err := svc.Create(context.Background(), owner.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: theirs.ID, Quantity: 1}},
		PrefixID: prefix.ID,
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCreateOrderExplicitDuplicateReference(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)

	svc := newOrderService(db)
	in := CreateOrderInput{
		Items:     []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		Reference: "CUSTOM-1",
	}
	if _, err := svc.Create(context.Background(), user.ID, in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(context.Background(), user.ID, in)
	var dup *DuplicateReferenceError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateReferenceError, got %v", err)
	}
}

func TestGeneratedReferencesIncrement(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)

	svc := newOrderService(db)
	for i, want := range []string{"ORD-1", "ORD-2", "ORD-3"} {
		order, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
			Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
			PrefixID: prefix.ID,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if order.Reference != want {
			t.Fatalf("expected %s, got %s", want, order.Reference)
		}
	}
}

func TestMarkPaidDecrementsWithCurrentComposition(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)
	b := seedBundle(t, db, user.ID, "B", 9.00, 20, models.BundleItem{ComponentID: p.ID, Quantity: 2})

	svc := newOrderService(db)
	order, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: b.ID, Quantity: 1}},
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// composition edited between create and pay: live composition wins
	if err := db.Model(&models.BundleItem{}).Where("bundle_id = ?", b.ID).Update("quantity", 3).Error; err != nil {
		t.Fatalf("edit composition: %v", err)
	}

	paid, err := svc.MarkPaid(context.Background(), user.ID, order.PublicID)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != models.OrderStatusPaid || paid.PaidAt == nil {
		t.Fatalf("unexpected paid order: %+v", paid)
	}
	if got := productQty(t, db, p.ID); got != 7 {
		t.Fatalf("expected quantity 7 after 1x(3xP), got %d", got)
	}
}

func TestMarkPaidInsufficientStockKeepsOrderPrepared(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 1, 5.00, 20)

	svc := newOrderService(db)
	order, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 5}},
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.MarkPaid(context.Background(), user.ID, order.PublicID)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	reloaded, err := svc.Get(context.Background(), user.ID, order.PublicID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Status != models.OrderStatusPrepared {
		t.Fatalf("order must stay prepared, got %s", reloaded.Status)
	}
	if got := productQty(t, db, p.ID); got != 1 {
		t.Fatalf("stock must be unchanged, got %d", got)
	}
}

func TestStateMachineLegality(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 100, 5.00, 20)

	svc := newOrderService(db)
	ctx := context.Background()

	order, err := svc.Create(ctx, user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var transition *InvalidStateTransitionError

	// prepared: send is illegal
	if _, err := svc.MarkSent(ctx, user.ID, order.PublicID); !errors.As(err, &transition) {
		t.Fatalf("send on prepared: expected InvalidStateTransitionError, got %v", err)
	}

	if _, err := svc.MarkPaid(ctx, user.ID, order.PublicID); err != nil {
		t.Fatalf("pay: %v", err)
	}
	// paid: pay again and delete are illegal
	if _, err := svc.MarkPaid(ctx, user.ID, order.PublicID); !errors.As(err, &transition) {
		t.Fatalf("pay on paid: expected InvalidStateTransitionError, got %v", err)
	}
	if err := svc.Delete(ctx, user.ID, order.PublicID); !errors.As(err, &transition) {
		t.Fatalf("delete on paid: expected InvalidStateTransitionError, got %v", err)
	}

	if _, err := svc.MarkSent(ctx, user.ID, order.PublicID); err != nil {
		t.Fatalf("send: %v", err)
	}
	// sent: everything is illegal
	if _, err := svc.MarkPaid(ctx, user.ID, order.PublicID); !errors.As(err, &transition) {
		t.Fatalf("pay on sent: expected InvalidStateTransitionError, got %v", err)
	}
	if err := svc.Delete(ctx, user.ID, order.PublicID); !errors.As(err, &transition) {
		t.Fatalf("delete on sent: expected InvalidStateTransitionError, got %v", err)
	}
}

func TestTransitionOrderGuardedByPriorStatus(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)

	svc := newOrderService(db)
	order, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var row models.Order
	if err := db.Where("public_id = ?", order.PublicID).First(&row).Error; err != nil {
		t.Fatalf("load: %v", err)
	}

	// another transaction wins the transition between read and update
	if err := db.Model(&models.Order{}).Where("id = ?", row.ID).Update("status", models.OrderStatusPaid).Error; err != nil {
		t.Fatalf("flip status: %v", err)
	}
	err = transitionOrder(db, row.ID, models.OrderStatusPrepared, "pay", map[string]any{
		"status": models.OrderStatusPaid,
	})
	var transition *InvalidStateTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}
	if transition.From != models.OrderStatusPaid {
		t.Fatalf("error must carry the winning status, got %s", transition.From)
	}
}

func TestMarkPaidRefreshesTimestamps(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)

	svc := newOrderService(db)
	order, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	paid, err := svc.MarkPaid(context.Background(), user.ID, order.PublicID)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.PaidAt == nil || !paid.UpdatedAt.Equal(*paid.PaidAt) {
		t.Fatalf("returned order must carry the persisted update time, got updated=%v paid=%v", paid.UpdatedAt, paid.PaidAt)
	}
	sent, err := svc.MarkSent(context.Background(), user.ID, order.PublicID)
	if err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if sent.UpdatedAt.Before(paid.UpdatedAt) {
		t.Fatalf("sent update time must not regress: %v < %v", sent.UpdatedAt, paid.UpdatedAt)
	}
}

func TestDeletePreparedOrderRemovesItems(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 10, 5.00, 20)

	svc := newOrderService(db)
	order, err := svc.Create(context.Background(), user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 2}},
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), user.ID, order.PublicID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var orders, items int64
	db.Model(&models.Order{}).Count(&orders)
	db.Model(&models.OrderItem{}).Count(&items)
	if orders != 0 || items != 0 {
		t.Fatalf("expected empty tables, got %d orders %d items", orders, items)
	}
	if got := productQty(t, db, p.ID); got != 10 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
}

func TestOrderOwnershipGuards(t *testing.T) {
	db := setupTestDB(t)
	owner := seedUser(t, db, "owner@test")
	intruder := seedUser(t, db, "intruder@test")
	prefix := seedPrefix(t, db, owner.ID, "ORD")
	p := seedSimple(t, db, owner.ID, "P", 10, 5.00, 20)

	svc := newOrderService(db)
	order, err := svc.Create(context.Background(), owner.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		PrefixID: prefix.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var nf *NotFoundError
	if _, err := svc.Get(context.Background(), intruder.ID, order.PublicID); !errors.As(err, &nf) {
		t.Fatalf("get: expected NotFoundError, got %v", err)
	}
	if _, err := svc.MarkPaid(context.Background(), intruder.ID, order.PublicID); !errors.As(err, &nf) {
		t.Fatalf("pay: expected NotFoundError, got %v", err)
	}
	if err := svc.Delete(context.Background(), intruder.ID, order.PublicID); !errors.As(err, &nf) {
		t.Fatalf("delete: expected NotFoundError, got %v", err)
	}
	if _, err := svc.MarkPaid(context.Background(), intruder.ID, uuid.New()); !errors.As(err, &nf) {
		t.Fatalf("unknown id: expected NotFoundError, got %v", err)
	}
}

func TestDecrementStockLosesRace(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "race@test")
	p := seedSimple(t, db, user.ID, "P", 5, 5.00, 20)

	required := map[uint]int{p.ID: 3}
	// first consumer wins
	if err := DecrementStock(db, user.ID, required); err != nil {
		t.Fatalf("first decrement: %v", err)
	}
	// second consumer validated against the same snapshot but must fail the
	// compare-and-swap: 3 > 2 remaining
	err := DecrementStock(db, user.ID, required)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Available != 2 {
		t.Fatalf("expected available 2, got %d", stockErr.Available)
	}
	if got := productQty(t, db, p.ID); got != 2 {
		t.Fatalf("stock must never go negative, got %d", got)
	}
}

func TestOrderListFiltersByStatus(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orders@test")
	prefix := seedPrefix(t, db, user.ID, "ORD")
	p := seedSimple(t, db, user.ID, "P", 100, 5.00, 20)

	svc := newOrderService(db)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, user.ID, CreateOrderInput{
			Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
			PrefixID: prefix.ID,
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := svc.Create(ctx, user.ID, CreateOrderInput{
		Items:    []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		Status:   models.OrderStatusPaid,
		PrefixID: prefix.ID,
	}); err != nil {
		t.Fatalf("create paid: %v", err)
	}

	all, total, err := svc.List(ctx, user.ID, "", 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Fatalf("expected 4 orders, got total=%d len=%d", total, len(all))
	}
	paid, total, err := svc.List(ctx, user.ID, models.OrderStatusPaid, 50, 0)
	if err != nil {
		t.Fatalf("list paid: %v", err)
	}
	if total != 1 || len(paid) != 1 {
		t.Fatalf("expected 1 paid order, got total=%d len=%d", total, len(paid))
	}
}
