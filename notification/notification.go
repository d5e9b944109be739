package notification

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Level defines how a notice is styled in the page
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Kind names the page section a notice belongs to
type Kind string

const (
	KindConnection Kind = "connection"
	KindChart      Kind = "chart"
	KindSignal     Kind = "signal"
	KindOrder      Kind = "order"
	KindAccount    Kind = "account"
)

// Notification is one message displayed to the user
type Notification struct {
	Kind    Kind   `json:"kind"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Feed collects the notices produced while rendering one page. A Feed is
// never shared between requests.
type Feed struct {
	notifications []Notification
	mutex         sync.Mutex
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{}
}

// Add appends a notice in render order
func (f *Feed) Add(n Notification) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.notifications = append(f.notifications, n)
}

// All returns every notice in the order they were added
func (f *Feed) All() []Notification {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	notifications := make([]Notification, len(f.notifications))
	copy(notifications, f.notifications)
	return notifications
}

// ByKind returns the notices for one page section
func (f *Feed) ByKind(kind Kind) []Notification {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	var filtered []Notification
	for _, n := range f.notifications {
		if n.Kind == kind {
			filtered = append(filtered, n)
		}
	}
	return filtered
}

// Helper functions to create the notices the dashboard shows

func Success(kind Kind, format string, args ...any) Notification {
	return Notification{Kind: kind, Level: LevelSuccess, Message: fmt.Sprintf(format, args...)}
}

func Info(kind Kind, format string, args ...any) Notification {
	return Notification{Kind: kind, Level: LevelInfo, Message: fmt.Sprintf(format, args...)}
}

func Warning(kind Kind, format string, args ...any) Notification {
	return Notification{Kind: kind, Level: LevelWarning, Message: fmt.Sprintf(format, args...)}
}

func Error(kind Kind, format string, args ...any) Notification {
	return Notification{Kind: kind, Level: LevelError, Message: fmt.Sprintf(format, args...)}
}

// CreateConnectedNotification reports a verified broker connection
func CreateConnectedNotification(envLabel string, equity decimal.Decimal) Notification {
	return Success(KindConnection, "Connected to Alpaca (%s) — Equity: %s", envLabel, FormatMoney(equity))
}

// CreateAccountNotification summarizes the account for the account section
func CreateAccountNotification(status string, cash, buyingPower decimal.Decimal) Notification {
	return Info(KindAccount, "Account status: %s — Cash: %s — Buying Power: %s", status, FormatMoney(cash), FormatMoney(buyingPower))
}

// CreateOrderSubmittedNotification reports an accepted primary order
func CreateOrderSubmittedNotification(id, status string) Notification {
	return Success(KindOrder, "Order submitted: id=%s status=%s", id, status)
}

// FormatMoney renders a dollar amount with thousands separators and two decimals
func FormatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var out []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, intPart[i])
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + string(out) + frac
}
