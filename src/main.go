package main

import (
	"errors"
	"io"
	"lodging/src/apperr"
	"lodging/src/boot"
	"lodging/src/config"
	"lodging/src/middlewares"
	"lodging/src/types"
	"lodging/src/utils"
	"log"
	"net/http"
	"os"
	"path"
	"regexp"
	"strconv"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	apiPrefix string = "/api/v1"
)

var isodate validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := utils.ParseDay(date)
	return err == nil
}

// afterdate checks that the field is a later day than the field named by the param.
var afterdate validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	day, err := utils.ParseDay(date)
	if err != nil {
		return false
	}
	field := fl.Parent().FieldByName(fl.Param())
	fieldValue, ok := field.Interface().(string)
	if !ok {
		return false
	}
	other, err := utils.ParseDay(fieldValue)
	if err != nil {
		return false
	}
	return day.After(other)
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("isodate", isodate)
		v.RegisterValidation("afterdate", afterdate)
	}
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	return router
}

func maintenanceModeMiddleware(g *gin.Engine) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		mm := os.Getenv("MAINTENANCE_MODE")
		if mm == "" {
			return
		}
		on, err := strconv.ParseBool(mm)
		if err != nil || on {
			err := errors.New("server is under maintenance")
			log.Println(err.Error())
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, err.Error())
			return
		}
	})
	return g
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	apiv1 := g.Group(apiPrefix)
	return apiv1
}

// registerRoutes mounts the whole API on g.
func registerRoutes(g *gin.Engine, e *boot.Engine) {
	stripeWebhookRoute(g, e)

	authorized := apiv1Group(g)
	authorized.Use(middlewares.AuthMiddleware)
	{
		availabilityHandlers(authorized, e)
		bookingHandlers(authorized, e)
		paymentHandlers(authorized, e)
		balanceHandlers(authorized, e)
		ledgerHandlers(authorized, e)
		payoutHandlers(authorized, e)
	}
}

var statusByCode = map[apperr.Code]int{
	apperr.Conflict:            http.StatusConflict,
	apperr.IllegalTransition:   http.StatusConflict,
	apperr.InvalidRange:        http.StatusBadRequest,
	apperr.BadInput:            http.StatusBadRequest,
	apperr.CapacityExceeded:    http.StatusUnprocessableEntity,
	apperr.InsufficientBalance: http.StatusUnprocessableEntity,
	apperr.UnknownTransaction:  http.StatusNotFound,
	apperr.NotFound:            http.StatusNotFound,
	apperr.Forbidden:           http.StatusForbidden,
	apperr.AlreadyProcessed:    http.StatusOK,
}

// abortWithError writes the JSON error body for err. Engine errors keep their code; anything
// else is logged and reported as a retryable server error.
func abortWithError(ctx *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status, ok := statusByCode[appErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		body := gin.H{"error": appErr.Message, "code": appErr.Code}
		if appErr.BookingID != 0 {
			body["booking_id"] = appErr.BookingID
		}
		if appErr.Date != nil {
			body["date"] = utils.FormatDay(*appErr.Date)
		}
		ctx.AbortWithStatusJSON(status, body)
		return
	}
	log.Printf("[api] %s %s: %s\n", ctx.Request.Method, ctx.FullPath(), err.Error())
	ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "something went wrong, try again"})
}

func initLogger() {
	cwd, _ := os.Getwd()
	serverLogs := path.Join(cwd, "logs", "server.log")
	apiLogs := path.Join(cwd, "logs", "api.log")
	gin.ForceConsoleColor()

	if err := os.MkdirAll(path.Join(cwd, "logs"), 0o755); err != nil {
		log.Printf("Error creating log directory: %s\n", err.Error())
		return
	}
	gin.DefaultWriter = io.MultiWriter(&lumberjack.Logger{
		Filename:   apiLogs,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     14,
	}, os.Stdout)
	log.SetOutput(&lumberjack.Logger{
		Filename:   serverLogs,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func corsMiddleware() gin.HandlerFunc {
	if types.Environment(config.API_ENV) == types.Local {
		return cors.Default()
	}
	cc := cors.DefaultConfig()
	cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PUT", "HEAD")
	cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization")
	cc.AllowOriginFunc = func(origin string) bool {
		if config.APP_HOST == "" {
			return false
		}
		match, _ := regexp.MatchString(regexp.QuoteMeta(config.APP_HOST), origin)
		return match
	}
	cc.AllowCredentials = true
	return cors.New(cc)
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if types.Environment(apiEnv) == types.Local {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
		config.Reload()
		middlewares.SetSigningKey([]byte(os.Getenv("JWT_SECRET")))
	}
	initLogger()

	cfg := config.Load()
	engine := boot.InitEngine(cfg)
	boot.InitScheduler(engine)
	defer boot.StopScheduler()

	router := setupRouter()
	router.Use(corsMiddleware())
	registerValidators()
	router = maintenanceModeMiddleware(router)
	registerRoutes(router, engine)

	if err := router.Run(":9090"); err != nil {
		log.Fatalf("Failed to start server: %s", err)
	}
}
