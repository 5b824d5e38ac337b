package main

import (
	"errors"
	"lodging/src/apperr"
	"lodging/src/boot"
	"lodging/src/ledger"
	"lodging/src/middlewares"
	"lodging/src/types"
	"lodging/src/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ledgerQuery turns the query string into a ledger query. Hosts only ever see their own entries.
func ledgerQuery(ctx *gin.Context) (uint, ledger.Query, error) {
	var filters types.LedgerQueryFilters
	if err := ctx.ShouldBindQuery(&filters); err != nil {
		return 0, ledger.Query{}, apperr.New(apperr.BadInput, "%s", err.Error())
	}
	q := ledger.Query{Limit: filters.Limit}
	for _, t := range filters.Type {
		q.Types = append(q.Types, types.LedgerEntryType(t))
	}
	if filters.From != "" {
		from, _ := utils.ParseDay(filters.From)
		q.From = &from
	}
	if filters.To != "" {
		to, _ := utils.ParseDay(filters.To)
		q.To = &to
	}
	hostID := filters.HostID
	if types.Role(ctx.GetString("role")) == types.ROLE_HOST {
		hostID = ctx.GetUint("id")
	}
	return hostID, q, nil
}

func balanceHandlers(g *gin.RouterGroup, e *boot.Engine) *gin.RouterGroup {
	g.
		GET("/balance", middlewares.RequireRole(types.ROLE_HOST), func(ctx *gin.Context) {
			summary, err := e.Balance.CachedSummary(ctx, ctx.GetUint("id"))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": summary})
		}).
		GET("/hosts/:id/balance", middlewares.RequireRole(types.ROLE_OPERATOR), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			summary, err := e.Balance.Summary(ctx, params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": summary})
		}).
		GET("/stats", middlewares.RequireRole(types.ROLE_OPERATOR), func(ctx *gin.Context) {
			stats, err := e.Balance.PlatformStats(ctx)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": stats})
		})
	return g
}

func ledgerHandlers(g *gin.RouterGroup, e *boot.Engine) *gin.RouterGroup {
	ledgerGroup := g.Group("/ledger")
	ledgerGroup.
		GET("", middlewares.RequireRole(types.ROLE_HOST, types.ROLE_OPERATOR), func(ctx *gin.Context) {
			hostID, q, err := ledgerQuery(ctx)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			entries, err := e.Ledger.Query(ctx, hostID, q)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": entries, "count": len(entries)})
		}).
		POST("/export", middlewares.RequireRole(types.ROLE_HOST, types.ROLE_OPERATOR), func(ctx *gin.Context) {
			hostID, q, err := ledgerQuery(ctx)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			export, err := e.Ledger.Export(ctx, hostID, q)
			if errors.Is(err, ledger.ErrNoUploader) {
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": export})
		})

	operator := ledgerGroup.Group("", middlewares.RequireRole(types.ROLE_OPERATOR))
	operator.
		POST("/spend", func(ctx *gin.Context) {
			var body types.CreateSpendRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			entry, err := e.Ledger.RecordSpend(ctx, body.Amount, body.Note)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": entry})
		}).
		POST("/adjustments", func(ctx *gin.Context) {
			var body types.CreateAdjustmentRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			entry, err := e.Ledger.RecordAdjustment(ctx, body.HostID, body.Amount, body.HostAmount, body.Note)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": entry})
		})
	return g
}
