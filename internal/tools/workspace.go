// Package tools implements the productivity tools staff reach from the
// workspace: accomplishment reports, billing consolidation and document merge.
package tools

import (
	"github.com/nia-ro/workdesk/internal/identity"
	"github.com/nia-ro/workdesk/internal/rbac"
)

// Tool describes one workspace entry.
type Tool struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Permission  rbac.Permission `json:"permission"`
	Endpoint    string          `json:"endpoint"`
}

var catalog = []Tool{
	{
		ID:          "accomplishment-report",
		Name:        "Accomplishment Report",
		Description: "Generate the periodic physical accomplishment report.",
		Permission:  rbac.PermReportsGenerate,
		Endpoint:    "/api/reports/accomplishment",
	},
	{
		ID:          "billing-consolidation",
		Name:        "Billing Consolidation",
		Description: "Merge irrigation service fee billing sheets into one register.",
		Permission:  rbac.PermBillingConsolidate,
		Endpoint:    "/api/billing/consolidate",
	},
	{
		ID:          "document-merge",
		Name:        "Document Merge",
		Description: "Combine PDF documents into a single file.",
		Permission:  rbac.PermDocumentsMerge,
		Endpoint:    "/api/documents/merge",
	},
}

// Available lists the tools p may use, in catalog order.
func Available(p identity.Principal) []Tool {
	out := make([]Tool, 0, len(catalog))
	for _, t := range catalog {
		if p.Can(t.Permission) {
			out = append(out, t)
		}
	}
	return out
}
