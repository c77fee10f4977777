package models

import "testing"

func TestOrderStatusFromCode(t *testing.T) {
	cases := []struct {
		in   interface{}
		want OrderStatus
	}{
		{"Submitted", OrderStatusHeld},
		{"PreSubmitted", OrderStatusHeld},
		{"filled", OrderStatusFilled},
		{"Cancelled", OrderStatusCancelled},
		{"Inactive", OrderStatusRejected},
		{"Invalid", OrderStatusExpired},
		{"PendingSubmit", OrderStatusPendingNew},
		{"3", OrderStatusHeld},
		{int64(4), OrderStatusFilled},
		{float64(-1), OrderStatusExpired},
		{2, OrderStatusCancelled},
		{"Exploded", OrderStatusPendingNew},
		{nil, OrderStatusPendingNew},
		{OrderStatusFilled, OrderStatusFilled},
	}
	for _, c := range cases {
		if got := OrderStatusFromCode(c.in); got != c.want {
			t.Errorf("OrderStatusFromCode(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestFieldsGet(t *testing.T) {
	f := Fields{{Key: "latest_price", Value: 10.5}, {Key: "volume", Value: int64(3)}, {Key: "latest_price", Value: 0.05}}

	v, ok := f.Get("latest_price")
	if !ok || v != 10.5 {
		t.Fatalf("expected first latest_price, got %v %v", v, ok)
	}
	if _, ok := f.Get("open"); ok {
		t.Fatalf("unexpected open field")
	}
	if keys := f.Keys(); len(keys) != 3 || keys[1] != "volume" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}
