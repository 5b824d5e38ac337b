package boot

import (
	"lodging/src/availability"
	"lodging/src/balance"
	"lodging/src/bookings"
	"lodging/src/config"
	"lodging/src/db"
	"lodging/src/ledger"
	"lodging/src/lib"
	libaws "lodging/src/lib/aws"
	"lodging/src/models"
	"lodging/src/payments"
	"lodging/src/payouts"
	"lodging/src/store"
	"log"
	"os"

	"gorm.io/gorm"
)

// Engine holds the wired services behind the HTTP surface and the sweeps.
type Engine struct {
	Config   *config.Config
	Store    store.Store
	Index    *availability.Index
	Balance  *balance.Projector
	Ledger   *ledger.Ledger
	Bookings *bookings.Service
	Payments *payments.Reconciler
	Payouts  *payouts.Service
	Events   lib.Publisher
}

type Options struct {
	Gateway  payments.Gateway
	Events   lib.Publisher
	Cache    *lib.Cache
	Uploader ledger.Uploader
}

func NewEngine(s store.Store, cfg *config.Config, opts Options) *Engine {
	projector := balance.New(s, cfg.WithholdPolicy).WithCache(opts.Cache, cfg.BalanceCacheTTL)
	index := availability.New(s, cfg.HoldWindow)
	l := ledger.New(s, projector)
	if opts.Uploader != nil {
		l.WithUploader(opts.Uploader)
	}
	return &Engine{
		Config:   cfg,
		Store:    s,
		Index:    index,
		Balance:  projector,
		Ledger:   l,
		Bookings: bookings.New(s, index, projector, cfg).WithPublisher(opts.Events),
		Payments: payments.New(s, l, projector, opts.Gateway, cfg).WithPublisher(opts.Events),
		Payouts:  payouts.New(s, l, projector).WithPublisher(opts.Events),
		Events:   opts.Events,
	}
}

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.Listing{},
		&models.ListingBlockedDate{},
		&models.Booking{},
		&models.LedgerEntry{},
		&models.PayoutRequest{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

// InitEngine wires the production engine: postgres store, Stripe, redis and the configured
// event driver.
func InitEngine(cfg *config.Config) *Engine {
	opts := Options{
		Gateway: lib.NewStripeGateway(lib.GetStripeClient(), config.APP_HOST),
		Events:  InitBroker(),
	}
	if rdb := lib.GetRedisClient(); rdb != nil {
		opts.Cache = lib.NewCache(rdb, "balance")
	}
	if bucket := os.Getenv("S3_EXPORTS_BUCKET"); bucket != "" {
		opts.Uploader = libaws.NewS3Uploader(bucket)
	}
	return NewEngine(store.NewGormStore(InitDb()), cfg, opts)
}

// InitBroker picks the domain event publisher from EVENTS_DRIVER. Any setup failure falls
// back to logging the events.
func InitBroker() lib.Publisher {
	switch config.EVENTS_DRIVER {
	case "kafka":
		if _, err := lib.KafkaCreateTopics(config.EVENTS_TOPIC); err != nil {
			log.Printf("[events] Error creating topic %s: %s\n", config.EVENTS_TOPIC, err.Error())
		}
		p, err := lib.NewKafkaPublisher("BookingEventsProducer", config.EVENTS_TOPIC)
		if err != nil {
			log.Printf("[events] Error creating kafka producer: %s\n", err.Error())
			return lib.LogPublisher{}
		}
		return p
	case "sqs":
		cli := lib.AWSGetSQSClient()
		if cli == nil {
			return lib.LogPublisher{}
		}
		return libaws.NewSQSPublisher(config.EVENTS_QUEUE, cli)
	case "sns":
		cli := lib.AWSGetSNSClient()
		if cli == nil {
			return lib.LogPublisher{}
		}
		return libaws.NewSNSPublisher(config.EVENTS_TOPIC, cli)
	case "pusher":
		return lib.NewPusherPublisher(lib.GetPusherClient())
	}
	return lib.LogPublisher{}
}

// InitScheduler registers the maintenance sweeps and starts the scheduler.
func InitScheduler(e *Engine) {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	interval := e.Config.SweepInterval
	if _, err := lib.CreateSweepJob("expire-pending-holds", interval, e.Bookings.ExpirePendingHolds); err != nil {
		return
	}
	if _, err := lib.CreateSweepJob("complete-stays", interval, e.Bookings.SweepCompletions); err != nil {
		return
	}
	log.Println("Jobs in queue:", len(sched.Jobs()))
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while shutting stopping Scheduler. Check logs for info")
		return
	}
}
