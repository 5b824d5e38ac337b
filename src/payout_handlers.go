package main

import (
	"lodging/src/boot"
	"lodging/src/middlewares"
	"lodging/src/models"
	"lodging/src/types"
	"net/http"

	"github.com/gin-gonic/gin"
)

func payoutHandlers(g *gin.RouterGroup, e *boot.Engine) *gin.RouterGroup {
	g.
		POST("/payouts", middlewares.RequireRole(types.ROLE_HOST), func(ctx *gin.Context) {
			var body types.CreatePayoutRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			payout, err := e.Payouts.RequestPayout(ctx, ctx.GetUint("id"), body.Amount, body.Method)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": payout})
		}).
		GET("/payouts", middlewares.RequireRole(types.ROLE_HOST, types.ROLE_OPERATOR), func(ctx *gin.Context) {
			var (
				list []models.PayoutRequest
				err  error
			)
			if types.Role(ctx.GetString("role")) == types.ROLE_OPERATOR {
				list, err = e.Payouts.ListPending(ctx)
			} else {
				list, err = e.Payouts.ListForHost(ctx, ctx.GetUint("id"))
			}
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": list, "count": len(list)})
		}).
		PUT("/payouts/:id/approve", middlewares.RequireRole(types.ROLE_OPERATOR), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			payout, err := e.Payouts.Approve(ctx, ctx.GetUint("id"), params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": payout})
		}).
		PUT("/payouts/:id/reject", middlewares.RequireRole(types.ROLE_OPERATOR), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.ReasonRequestBody
			if ctx.Request.ContentLength > 0 {
				if err := ctx.ShouldBindJSON(&body); err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
			}
			payout, err := e.Payouts.Reject(ctx, ctx.GetUint("id"), params.ID, body.Reason)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": payout})
		})
	return g
}
