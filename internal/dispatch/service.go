// Package dispatch implements the trip dispatch and acceptance engine:
// alert broadcast, the one-winner acceptance protocol, the verified trip
// start/complete gates, and the expiry sweep.
package dispatch

import (
	"time"

	"trip-dispatch/internal/geo"
	"trip-dispatch/internal/logger"
	"trip-dispatch/internal/ports"
	"trip-dispatch/internal/rabbitmq"
)

// Options are the dispatch tunables, typically sourced from config.
type Options struct {
	AlertTTL       time.Duration // offer window per broadcast alert
	ScheduleBuffer time.Duration // minimum gap between two trip windows
	FenceMeters    float64       // origin/destination geofence tolerance
	BroadcastLimit int           // max drivers per dispatch round
}

func (o *Options) withDefaults() {
	if o.AlertTTL <= 0 {
		o.AlertTTL = time.Minute
	}
	if o.ScheduleBuffer <= 0 {
		o.ScheduleBuffer = 30 * time.Minute
	}
	if o.FenceMeters <= 0 {
		o.FenceMeters = 100
	}
	if o.BroadcastLimit <= 0 {
		o.BroadcastLimit = 50
	}
}

// dispatchService holds the engine's collaborators. All state lives in
// storage; the struct itself is stateless and safe for concurrent use.
type dispatchService struct {
	logger    *logger.Logger
	uow       ports.UnitOfWork
	trips     ports.TripRepository
	alerts    ports.AlertRepository
	drivers   ports.DriverDirectory
	vehicles  ports.VehicleRepository
	places    ports.PlaceResolver
	outbox    ports.OutboxRepository
	locations ports.LocationIndex
	tokens    *geo.TokenIssuer
	pub       *rabbitmq.MQPublisher
	opts      Options

	now func() time.Time // injectable for tests
}

// NewService wires the dispatch engine.
func NewService(
	log *logger.Logger,
	uow ports.UnitOfWork,
	trips ports.TripRepository,
	alerts ports.AlertRepository,
	drivers ports.DriverDirectory,
	vehicles ports.VehicleRepository,
	places ports.PlaceResolver,
	outbox ports.OutboxRepository,
	locations ports.LocationIndex,
	tokens *geo.TokenIssuer,
	pub *rabbitmq.MQPublisher,
	opts Options,
) ports.DispatchService {
	opts.withDefaults()
	return &dispatchService{
		logger:    log,
		uow:       uow,
		trips:     trips,
		alerts:    alerts,
		drivers:   drivers,
		vehicles:  vehicles,
		places:    places,
		outbox:    outbox,
		locations: locations,
		tokens:    tokens,
		pub:       pub,
		opts:      opts,
		now:       time.Now,
	}
}
