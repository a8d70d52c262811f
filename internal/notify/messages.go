package notify

import (
	"strings"
	"time"

	"notary-signing-router/internal/domain"
)

const OFFER_TEMPLATE = `New signing offer {{ORDER_ID}}: {{SIGNING_TYPE}} {{LOAN_TYPE}} signing in {{STATE}}{{WINDOW}}.
Reply within {{TIMEOUT}} to accept or decline.`

const ASSIGNED_TEMPLATE = `You are confirmed for signing {{ORDER_ID}} in {{STATE}}{{WINDOW}}. Thank you.`

const ESCALATION_TEMPLATE = `Order {{ORDER_ID}} ({{STATE}}) needs manual assignment: {{REASONS}}`

const windowLayout = "Jan 2 15:04 MST"

func RenderTemplate(tpl string, vars map[string]string) string {
	rendered := tpl
	for k, v := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+k+"}}", v)
	}
	return rendered
}

func BuildOfferMessage(order domain.SigningOrder, timeout time.Duration) string {
	loan := string(order.LoanType)
	if loan == "" {
		loan = "loan"
	}
	return RenderTemplate(OFFER_TEMPLATE, map[string]string{
		"ORDER_ID":     order.ID,
		"SIGNING_TYPE": strings.ToUpper(string(order.SigningType)),
		"LOAN_TYPE":    strings.ReplaceAll(loan, "_", " "),
		"STATE":        order.State,
		"WINDOW":       windowText(order.Window),
		"TIMEOUT":      timeout.Round(time.Minute).String(),
	})
}

func BuildAssignedMessage(order domain.SigningOrder) string {
	return RenderTemplate(ASSIGNED_TEMPLATE, map[string]string{
		"ORDER_ID": order.ID,
		"STATE":    order.State,
		"WINDOW":   windowText(order.Window),
	})
}

func BuildEscalationMessage(orderID, state string, reasons []domain.Reason) string {
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, r.Message)
	}
	return RenderTemplate(ESCALATION_TEMPLATE, map[string]string{
		"ORDER_ID": orderID,
		"STATE":    state,
		"REASONS":  strings.Join(parts, "; "),
	})
}

func windowText(w domain.TimeWindow) string {
	if w.IsZero() {
		return ""
	}
	return ", " + w.Start.Format(windowLayout) + " - " + w.End.Format(windowLayout)
}
