package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEmptyCart(t *testing.T) {
	cart := EmptyCart()

	if !cart.IsEmpty() {
		t.Fatalf("expected no items, got %d", len(cart.Items))
	}
	if cart.Items == nil {
		t.Fatal("items must be an empty slice, not nil")
	}
	for name, value := range map[string]decimal.Decimal{
		"subtotal": cart.Subtotal,
		"discount": cart.Discount,
		"shipping": cart.Shipping,
		"total":    cart.Total,
	} {
		if !value.IsZero() {
			t.Errorf("expected %s to be zero, got %s", name, value)
		}
	}
	if cart.AppliedVoucherCode != nil {
		t.Error("expected no voucher on empty cart")
	}
}

func TestValidateQuantity(t *testing.T) {
	tests := []struct {
		qty     int
		wantErr bool
	}{
		{qty: -3, wantErr: true},
		{qty: 0, wantErr: true},
		{qty: 1, wantErr: false},
		{qty: 42, wantErr: false},
	}

	for _, tc := range tests {
		err := ValidateQuantity(tc.qty)
		if tc.wantErr && !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("qty=%d: expected ErrInvalidQuantity, got %v", tc.qty, err)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("qty=%d: unexpected error %v", tc.qty, err)
		}
	}
}

func TestCartCloneIsDeep(t *testing.T) {
	code := "WELCOME10"
	cart := Cart{
		ID: "cart-1",
		Items: []CartItem{
			{ID: "item-1", Quantity: 2, Product: Product{ID: "p-1", Media: []ProductMedia{{ID: "m-1"}}}},
		},
		AppliedVoucherCode: &code,
	}

	clone := cart.Clone()
	clone.Items[0].Quantity = 9
	clone.Items[0].Product.Media[0].ID = "changed"
	*clone.AppliedVoucherCode = "OTHER"

	if cart.Items[0].Quantity != 2 {
		t.Fatalf("original quantity changed: %d", cart.Items[0].Quantity)
	}
	if cart.Items[0].Product.Media[0].ID != "m-1" {
		t.Fatal("original media changed")
	}
	if *cart.AppliedVoucherCode != "WELCOME10" {
		t.Fatal("original voucher changed")
	}
}

func TestCartItemCountAndFind(t *testing.T) {
	cart := Cart{Items: []CartItem{{ID: "a", Quantity: 2}, {ID: "b", Quantity: 3}}}

	if got := cart.ItemCount(); got != 5 {
		t.Fatalf("expected 5 units, got %d", got)
	}
	if _, ok := cart.FindItem("b"); !ok {
		t.Fatal("expected to find item b")
	}
	if _, ok := cart.FindItem("zzz"); ok {
		t.Fatal("unexpected item zzz")
	}
}

func TestSummaryFromOrderUsesServerTotals(t *testing.T) {
	code := "VIP"
	order := Order{
		SubtotalAmount:     decimal.RequireFromString("120.00"),
		DiscountAmount:     decimal.RequireFromString("12.00"),
		ShippingAmount:     decimal.RequireFromString("8.50"),
		TotalAmount:        decimal.RequireFromString("116.50"),
		AppliedVoucherCode: &code,
	}

	summary := SummaryFromOrder(order)
	if !summary.Total.Equal(order.TotalAmount) || !summary.Discount.Equal(order.DiscountAmount) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.AppliedVoucherCode == nil || *summary.AppliedVoucherCode != "VIP" {
		t.Fatal("voucher code not carried over")
	}
}
