package domain

type OrderStatus string

const (
	StatusReceived     OrderStatus = "RECEIVED"
	StatusRouting      OrderStatus = "ROUTING"
	StatusOffered      OrderStatus = "OFFERED"
	StatusAssigned     OrderStatus = "ASSIGNED"
	StatusUnassignable OrderStatus = "UNASSIGNABLE"
	StatusEscalated    OrderStatus = "ESCALATED"
	StatusInvalid      OrderStatus = "INVALID"
)

type AuditState string

const (
	AuditRouted    AuditState = "ROUTED"
	AuditOffered   AuditState = "OFFERED"
	AuditDeclined  AuditState = "DECLINED"
	AuditExpired   AuditState = "EXPIRED"
	AuditAssigned  AuditState = "ASSIGNED"
	AuditEscalated AuditState = "ESCALATED"
	AuditInvalid   AuditState = "INVALID"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferAccepted OfferStatus = "ACCEPTED"
	OfferDeclined OfferStatus = "DECLINED"
	OfferExpired  OfferStatus = "EXPIRED"
	OfferLost     OfferStatus = "LOST"
)

type OfferResponse string

const (
	OfferResponseAccept  OfferResponse = "accept"
	OfferResponseDecline OfferResponse = "decline"
)
