// Package classify derives the action a PO row needs from its due
// date and recommended date.
package classify

import (
	"time"

	"go.povoice.tech/internal/store/purchaseorder"
)

// Result is a classified PO row
type Result struct {
	ActionType purchaseorder.ActionType

	// DaysDiff is recommended minus due in whole days: negative for
	// EXPEDITE, positive for PUSH_OUT, zero for CANCEL.
	DaysDiff int
}

// Classify determines what action a PO needs.
//
// A missing recommended date means the planning system wants the order
// gone: CANCEL. A recommended date on the same calendar day as the due
// date needs no action and is skipped (ok=false). Earlier is EXPEDITE,
// later is PUSH_OUT.
func Classify(dueDate time.Time, recommended *time.Time) (Result, bool) {
	if recommended == nil {
		return Result{ActionType: purchaseorder.ActionCancel, DaysDiff: 0}, true
	}

	due := truncateToDay(dueDate)
	rec := truncateToDay(*recommended)

	days := int(rec.Sub(due).Hours() / 24)
	if days == 0 {
		return Result{}, false
	}

	if days < 0 {
		return Result{ActionType: purchaseorder.ActionExpedite, DaysDiff: days}, true
	}
	return Result{ActionType: purchaseorder.ActionPushOut, DaysDiff: days}, true
}

// truncateToDay drops the time-of-day component in UTC so that date
// comparisons ignore timestamps carried in from spreadsheets.
func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
