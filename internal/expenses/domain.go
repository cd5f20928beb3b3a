package expenses

import (
	"time"

	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tracking"
)

// ExpenseStatus enumerates expense record statuses.
type ExpenseStatus string

// StatusPending marks freshly generated, not yet approved expenses.
const StatusPending ExpenseStatus = "Pending"

// Default categories for generated expenses.
const (
	CategoryTeamTasks = "Team Tasks"
	CategoryFeatures  = "Features"
)

// ExpenseRecord is one billable line generated from a completed work item.
type ExpenseRecord struct {
	ID            string                `json:"id"`
	Person        string                `json:"person"`
	Concept       string                `json:"concept"`
	Category      string                `json:"category"`
	Company       string                `json:"company,omitempty"`
	Hours         float64               `json:"hours"`
	HourlyRate    float64               `json:"hourlyRate"`
	Subtotal      float64               `json:"subtotal"`
	Tax           float64               `json:"tax"`
	Total         float64               `json:"total"`
	BillingPeriod shared.BillingPeriod  `json:"billingPeriod"`
	SourceKind    tracking.ItemKind     `json:"sourceWorkItemKind"`
	SourceID      string                `json:"sourceWorkItemId"`
	Status        ExpenseStatus         `json:"status"`
	CreatedAt     time.Time             `json:"createdAt"`
}

// DedupKey builds the composite key identifying a billed work item within a
// period: "task:<id>" or "feature:<id>".
func DedupKey(kind tracking.ItemKind, id string) string {
	if kind == tracking.KindTask {
		return "task:" + id
	}
	return "feature:" + id
}
