package temporal

import (
	"notary-signing-router/internal/domain"
)

const OfferResponseSignalName = "offerResponse"

const AssignmentStateQueryName = "assignmentState"

type OfferResponseSignal struct {
	VendorID string               `json:"vendor_id"`
	Response domain.OfferResponse `json:"response"`
}

// AssignmentState is what the workflow reports to assignmentState queries.
type AssignmentState struct {
	OrderID        string             `json:"order_id"`
	Status         domain.OrderStatus `json:"status"`
	OfferedVendor  string             `json:"offered_vendor,omitempty"`
	OffersSent     int                `json:"offers_sent"`
	AssignedVendor string             `json:"assigned_vendor,omitempty"`
}
