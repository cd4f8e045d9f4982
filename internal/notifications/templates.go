package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
)

// Template names double as the delivery record template and the Resend tag.
const (
	templateListingApproved     = "listing_approved"
	templateListingRejected     = "listing_rejected"
	templatePaymentConfirmed    = "payment_confirmed"
	templatePaymentReceived     = "payment_received"
	templatePaymentFailed       = "payment_failed"
	templateRefundBuyer         = "refund_issued_buyer"
	templateRefundDealer        = "refund_issued_dealer"
	templateTrackingStageUpdate = "tracking_stage_updated"
	templateEscrowReleased      = "escrow_released"
)

var layout = template.Must(template.New("layout").Parse(`<!doctype html>
<html>
<body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933">
<h2>{{.Heading}}</h2>
{{range .Lines}}<p>{{.}}</p>
{{end}}<p style="color:#7b8794;font-size:12px">CarBridge Marketplace</p>
</body>
</html>`))

// rendered is one email ready for the sender.
type rendered struct {
	Template string
	Subject  string
	HTML     string
	Text     string
}

type view struct {
	Heading string
	Lines   []string
}

func render(name, subject string, v view) (rendered, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, v); err != nil {
		return rendered{}, fmt.Errorf("render %s: %w", name, err)
	}
	text := v.Heading + "\n\n" + strings.Join(v.Lines, "\n\n")
	return rendered{Template: name, Subject: subject, HTML: buf.String(), Text: text}, nil
}

func formatAmount(amount float64, currency enums.Currency) string {
	return decimal.NewFromFloat(amount).StringFixedBank(2) + " " + currency.String()
}

func renderListingDecision(p payloads.ListingDecisionEvent) (rendered, error) {
	if p.Status == enums.ListingStatusRejected {
		return render(templateListingRejected, "Your listing needs changes", view{
			Heading: "Listing not approved",
			Lines: []string{
				fmt.Sprintf("Your listing %q was not approved.", p.Title),
				"Reason: " + p.Reason,
				"Update the listing and submit it again for review.",
			},
		})
	}
	return render(templateListingApproved, "Your listing is live", view{
		Heading: "Listing approved",
		Lines: []string{
			fmt.Sprintf("Your listing %q is now visible to buyers.", p.Title),
		},
	})
}

func renderPaymentConfirmed(p payloads.TransactionEvent) (rendered, error) {
	return render(templatePaymentConfirmed, "Payment confirmed", view{
		Heading: "We received your payment",
		Lines: []string{
			fmt.Sprintf("Your payment of %s is held in escrow until delivery is confirmed.", formatAmount(p.Amount, p.Currency)),
			"Reference: " + p.TransactionID.String(),
		},
	})
}

func renderPaymentReceived(p payloads.TransactionEvent) (rendered, error) {
	return render(templatePaymentReceived, "A buyer paid for your vehicle", view{
		Heading: "Payment received",
		Lines: []string{
			fmt.Sprintf("A buyer paid %s for listing %s.", formatAmount(p.Amount, p.Currency), p.ListingID),
			"Funds are released once delivery is confirmed.",
		},
	})
}

func renderPaymentFailed(p payloads.TransactionEvent) (rendered, error) {
	lines := []string{fmt.Sprintf("Your payment of %s could not be completed.", formatAmount(p.Amount, p.Currency))}
	if p.FailureReason != "" {
		lines = append(lines, "Reason: "+p.FailureReason)
	}
	lines = append(lines, "No funds were captured. You can try again from the listing page.")
	return render(templatePaymentFailed, "Payment unsuccessful", view{Heading: "Payment failed", Lines: lines})
}

func renderRefund(p payloads.TransactionRefundedEvent, forDealer bool) (rendered, error) {
	amount := formatAmount(p.RefundAmount, p.Currency)
	at := p.RefundedAt.UTC().Format(time.RFC1123)
	if forDealer {
		return render(templateRefundDealer, "A transaction was refunded", view{
			Heading: "Refund issued",
			Lines: []string{
				fmt.Sprintf("Transaction %s was refunded (%s) on %s.", p.TransactionID, amount, at),
				"Reason: " + p.Reason,
				"The listing is available for sale again.",
			},
		})
	}
	return render(templateRefundBuyer, "Your refund is on its way", view{
		Heading: "Refund issued",
		Lines: []string{
			fmt.Sprintf("We refunded %s to your original payment method on %s.", amount, at),
			"Reason: " + p.Reason,
			"Refund reference: " + p.RefundID,
		},
	})
}

func renderTrackingUpdate(p payloads.TrackingStageUpdatedEvent) (rendered, error) {
	lines := []string{fmt.Sprintf("The %s stage of your order is now %s.", p.StageType, strings.ReplaceAll(p.Status.String(), "_", " "))}
	if p.Location != nil && *p.Location != "" {
		lines = append(lines, "Location: "+*p.Location)
	}
	if p.ETA != nil {
		lines = append(lines, "Estimated arrival: "+p.ETA.UTC().Format("Jan 2, 2006"))
	}
	return render(templateTrackingStageUpdate, "Shipment update", view{Heading: "Your vehicle is on the move", Lines: lines})
}

func renderEscrowReleased(p payloads.EscrowEvent) (rendered, error) {
	return render(templateEscrowReleased, "Escrow released", view{
		Heading: "Funds released",
		Lines: []string{
			fmt.Sprintf("Escrow %s of %s has been released to you.", p.EscrowID, formatAmount(p.Amount, p.Currency)),
		},
	})
}
