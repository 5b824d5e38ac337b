package lib

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	sc := stripe.NewClient(apiKey)
	stripeClient = sc

	return sc
}

func NewStripeClient(c *stripe.Client) {
	stripeClient = c
}

type CheckoutParams struct {
	BookingID   uint
	Amount      decimal.Decimal
	Currency    string
	Description string
	ExpiresAt   time.Time
}

// CheckoutSession is a hosted payment page. Its ID doubles as the transaction id of the booking.
type CheckoutSession struct {
	ID  string `json:"transaction_id"`
	URL string `json:"url"`
}

// StripeGateway opens Stripe Checkout sessions and refunds their payment intents.
type StripeGateway struct {
	sc      *stripe.Client
	appHost string
}

func NewStripeGateway(sc *stripe.Client, appHost string) *StripeGateway {
	return &StripeGateway{sc: sc, appHost: appHost}
}

// MinorUnits converts a decimal amount to the integer minor unit Stripe expects.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (g *StripeGateway) CreateSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	bookingID := strconv.FormatUint(uint64(p.BookingID), 10)
	metadata := map[string]string{"booking_id": bookingID}
	params := &stripe.CheckoutSessionCreateParams{
		SuccessURL:        stripe.String(fmt.Sprintf("%s/bookings/%s/checkout/success", g.appHost, bookingID)),
		CancelURL:         stripe.String(fmt.Sprintf("%s/bookings/%s/checkout/cancel", g.appHost, bookingID)),
		UIMode:            stripe.String("hosted"),
		Mode:              stripe.String("payment"),
		ClientReferenceID: stripe.String(bookingID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(MinorUnits(p.Amount)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if !p.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(p.ExpiresAt.Unix())
	}
	cs, err := g.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		log.Printf("[stripe] Error creating checkout session for booking %s: %s\n", bookingID, err.Error())
		return nil, err
	}
	return &CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}

// Refund returns the full payment collected by the checkout session.
func (g *StripeGateway) Refund(ctx context.Context, transactionID string) error {
	cs, err := g.sc.V1CheckoutSessions.Retrieve(ctx, transactionID, nil)
	if err != nil {
		log.Printf("[stripe] Error retrieving checkout session %s: %s\n", transactionID, err.Error())
		return err
	}
	if cs.PaymentIntent == nil {
		return errors.New("checkout session has no payment intent")
	}
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(cs.PaymentIntent.ID),
	}
	params.SetIdempotencyKey("refund:" + transactionID)
	if _, err := g.sc.V1Refunds.Create(ctx, params); err != nil {
		log.Printf("[stripe] Error refunding %s: %s\n", transactionID, err.Error())
		return err
	}
	return nil
}
