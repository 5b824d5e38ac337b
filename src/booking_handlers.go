package main

import (
	"lodging/src/boot"
	"lodging/src/bookings"
	"lodging/src/middlewares"
	"lodging/src/models"
	"lodging/src/types"
	"lodging/src/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

func availabilityHandlers(g *gin.RouterGroup, e *boot.Engine) *gin.RouterGroup {
	g.GET("/listings/:id/availability", func(ctx *gin.Context) {
		var params types.SimpleRequestParams
		if err := ctx.ShouldBindUri(&params); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var query types.AvailabilityQuery
		if err := ctx.ShouldBindQuery(&query); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		checkIn, _ := utils.ParseDay(query.CheckIn)
		checkOut, _ := utils.ParseDay(query.CheckOut)
		ok, err := e.Index.IsAvailable(ctx, params.ID, checkIn, checkOut)
		if err != nil {
			abortWithError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"data": gin.H{
			"listing_id": params.ID,
			"check_in":   query.CheckIn,
			"check_out":  query.CheckOut,
			"available":  ok,
		}})
	})
	return g
}

func bookingHandlers(g *gin.RouterGroup, e *boot.Engine) *gin.RouterGroup {
	g.
		POST("/bookings", func(ctx *gin.Context) {
			var body types.CreateBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			checkIn, _ := utils.ParseDay(body.CheckIn)
			checkOut, _ := utils.ParseDay(body.CheckOut)
			booking, err := e.Bookings.Create(ctx, bookings.CreateParams{
				ListingID: body.ListingID,
				GuestID:   ctx.GetUint("id"),
				CheckIn:   checkIn,
				CheckOut:  checkOut,
				Guests:    body.Guests,
				Mode:      types.BookingMode(body.Mode),
			})
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": booking})
		}).
		GET("/bookings", func(ctx *gin.Context) {
			var query types.BookingQueryFilters
			if err := ctx.ShouldBindQuery(&query); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userID := ctx.GetUint("id")
			var (
				list []models.Booking
				err  error
			)
			if query.As == "host" {
				list, err = e.Bookings.ListForHost(ctx, userID)
			} else {
				list, err = e.Bookings.ListForGuest(ctx, userID)
			}
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": list, "count": len(list)})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			booking, err := e.Bookings.Get(ctx, params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			userID := ctx.GetUint("id")
			if booking.GuestID != userID && booking.HostID != userID && types.Role(ctx.GetString("role")) != types.ROLE_OPERATOR {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "booking not found", "code": "not_found"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		PUT("/bookings/:id/approve", middlewares.RequireRole(types.ROLE_HOST), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			booking, err := e.Bookings.HostApprove(ctx, ctx.GetUint("id"), params.ID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		PUT("/bookings/:id/reject", middlewares.RequireRole(types.ROLE_HOST), func(ctx *gin.Context) {
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
			booking, err := e.Bookings.HostReject(ctx, ctx.GetUint("id"), params.ID, body.Reason)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		PUT("/bookings/:id/cancel", func(ctx *gin.Context) {
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
			booking, err := e.Bookings.Cancel(ctx, ctx.GetUint("id"), params.ID, body.Reason)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		})
	return g
}
