package domain

import "time"

// ExtensionPackage is a purchasable block of extra session time.
type ExtensionPackage struct {
	Minutes int   `json:"minutes"`
	Price   int64 `json:"price"`
}

// ExtensionCatalog lists the packages a seeker may request.
var ExtensionCatalog = []ExtensionPackage{
	{Minutes: 30, Price: 29000},
	{Minutes: 60, Price: 49000},
}

// LookupPackage returns the catalog package with the given minutes.
func LookupPackage(minutes int) (ExtensionPackage, bool) {
	for _, p := range ExtensionCatalog {
		if p.Minutes == minutes {
			return p, true
		}
	}
	return ExtensionPackage{}, false
}

const (
	CurrencyVND          = "VND"
	TransactionCompleted = "completed"
)

// Transaction records a settled payment for an extension.
type Transaction struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	ProfileID string    `json:"profile_id"` // payer
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
