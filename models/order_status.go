package models

import (
	"strconv"
	"strings"
)

// OrderStatus is the canonical order state exposed on order events.
type OrderStatus string

const (
	OrderStatusPendingNew      OrderStatus = "PendingNew"
	OrderStatusNew             OrderStatus = "Initial"
	OrderStatusHeld            OrderStatus = "Submitted"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusPendingCancel   OrderStatus = "PendingCancel"
	OrderStatusRejected        OrderStatus = "Inactive"
	OrderStatusExpired         OrderStatus = "Invalid"
)

var orderStatusByName = map[string]OrderStatus{
	"invalid":         OrderStatusExpired,
	"initial":         OrderStatusNew,
	"pendingcancel":   OrderStatusPendingCancel,
	"cancelled":       OrderStatusCancelled,
	"submitted":       OrderStatusHeld,
	"presubmitted":    OrderStatusHeld,
	"filled":          OrderStatusFilled,
	"inactive":        OrderStatusRejected,
	"pendingsubmit":   OrderStatusPendingNew,
	"partiallyfilled": OrderStatusPartiallyFilled,
}

var orderStatusByCode = map[int64]OrderStatus{
	-1: OrderStatusExpired,
	0:  OrderStatusNew,
	1:  OrderStatusPendingCancel,
	2:  OrderStatusCancelled,
	3:  OrderStatusHeld,
	4:  OrderStatusFilled,
	5:  OrderStatusRejected,
	6:  OrderStatusPendingNew,
}

// OrderStatusFromCode maps a broker status, given either as a name such as
// "Submitted" or as a numeric code, to its canonical value. Unknown values map
// to OrderStatusPendingNew.
func OrderStatusFromCode(code interface{}) OrderStatus {
	switch v := code.(type) {
	case OrderStatus:
		return v
	case string:
		if s, ok := orderStatusByName[strings.ToLower(strings.TrimSpace(v))]; ok {
			return s
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return OrderStatusFromCode(n)
		}
	case int:
		return OrderStatusFromCode(int64(v))
	case int64:
		if s, ok := orderStatusByCode[v]; ok {
			return s
		}
	case float64:
		if v == float64(int64(v)) {
			return OrderStatusFromCode(int64(v))
		}
	}
	return OrderStatusPendingNew
}
