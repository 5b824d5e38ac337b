package main

import (
	"io"
	"lodging/src/apperr"
	"lodging/src/boot"
	"lodging/src/middlewares"
	"lodging/src/types"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tidwall/gjson"
)

// checkoutOutcome maps a Checkout Session event to a payment outcome. ok is false for events
// that carry nothing to reconcile.
func checkoutOutcome(eventType string, session gjson.Result) (types.PaymentOutcome, bool) {
	switch eventType {
	case "checkout.session.completed":
		// async methods complete unpaid and report later
		if session.Get("payment_status").String() == "paid" {
			return types.OUTCOME_SUCCEEDED, true
		}
	case "checkout.session.async_payment_succeeded":
		return types.OUTCOME_SUCCEEDED, true
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		return types.OUTCOME_FAILED, true
	}
	return "", false
}

func stripeWebhookRoute(g *gin.Engine, e *boot.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		whsecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
		event, err := webhook.ConstructEventWithOptions(payload, ctx.GetHeader("Stripe-Signature"), whsecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s %s\n", event.ID, event.Type)

		session := gjson.GetBytes(payload, "data.object")
		outcome, ok := checkoutOutcome(string(event.Type), session)
		if !ok {
			ctx.Status(http.StatusNoContent)
			return
		}
		txn := session.Get("id").String()
		if txn == "" {
			log.Printf("[StripeEvent] %s carries no session id\n", event.ID)
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[CheckoutSession] %s booking=%s outcome=%s\n", txn, session.Get("metadata.booking_id").String(), outcome)

		result, err := e.Payments.OnGatewayCallback(ctx, txn, outcome)
		if apperr.Has(err, apperr.IllegalTransition) {
			// redelivery cannot change the outcome; the operator settles it by hand
			log.Printf("[StripeEvent] Ignoring %s for %s: %s\n", event.Type, txn, err.Error())
			ctx.JSON(http.StatusOK, gin.H{"ignored": true, "code": apperr.IllegalTransition, "error": err.Error()})
			return
		}
		if err != nil && !apperr.Has(err, apperr.AlreadyProcessed) {
			log.Printf("[StripeEvent] Error reconciling %s: %s\n", txn, err.Error())
			abortWithError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"data": result})
	})
	return apiv1
}

func paymentHandlers(g *gin.RouterGroup, e *boot.Engine) *gin.RouterGroup {
	g.
		POST("/bookings/:id/payment-session", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			session, err := e.Payments.OpenSession(ctx, ctx.GetUint("id"), params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": session})
		}).
		POST("/bookings/:id/refund", middlewares.RequireRole(types.ROLE_OPERATOR), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result, err := e.Payments.Refund(ctx, ctx.GetUint("id"), params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": result})
		})
	return g
}
