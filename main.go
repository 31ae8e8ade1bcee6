package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/peterbourgon/ff"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/a-bouts/helm/alarm"
	"github.com/a-bouts/helm/api"
	"github.com/a-bouts/helm/gps"
	"github.com/a-bouts/helm/land"
	"github.com/a-bouts/helm/latlon"
	"github.com/a-bouts/helm/mission"
	"github.com/a-bouts/helm/nav"
	"github.com/a-bouts/helm/otto"
	"github.com/a-bouts/helm/polar"
	"github.com/a-bouts/helm/state"
	"github.com/a-bouts/helm/wind"
	"github.com/a-bouts/helm/xmpp"
)

func main() {

	fs := flag.NewFlagSet("helm", flag.ExitOnError)
	var (
		missionFile  = fs.String("mission", "mission.json", "mission file")
		ottoDevice   = fs.String("otto-device", "/dev/ttyO1", "controller serial device")
		ottoBaud     = fs.Int("otto-baud", 4800, "controller baud rate")
		gpsDevice    = fs.String("gps-device", "/dev/ttyO4", "gps serial device")
		gpsBaud      = fs.Int("gps-baud", 4800, "gps baud rate")
		redisAddr    = fs.String("redis", "localhost:6379", "shared state backend")
		httpAddr     = fs.String("http", ":8888", "status api listen address")
		gribDir      = fs.String("grib-dir", "", "wind forecast directory (optional)")
		landFile     = fs.String("land-file", "", "forbidden region mask (optional)")
		logLevel     = fs.String("log-level", "info", "debug, info, warn or error")
		logFile      = fs.String("log-file", "", "log file (optional, rotated)")
		xmppHost     = fs.String("xmpp-host", "", "")
		xmppJid      = fs.String("xmpp-jid", "", "")
		xmppPassword = fs.String("xmpp-password", "", "")
		xmppTo       = fs.String("xmpp-to", "", "")
	)
	ff.Parse(fs, os.Args[1:], ff.WithEnvVarNoPrefix())

	initLog(*logLevel, *logFile)

	m, err := mission.Load(*missionFile)
	if err != nil {
		log.WithError(err).Fatal("Cannot load mission")
	}
	log.Infof("Mission '%s': %d attractors, %d repellors, launch %s",
		m.Title, len(m.Attractors), len(m.Repellors), m.Launch.Site)

	store, err := state.NewRedis(*redisAddr)
	if err != nil {
		log.WithError(err).Fatal("Cannot reach shared state store")
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, r := range []state.Record{
		&state.GpsFix{Location: latlon.None},
		&state.OttoState{},
		&state.Alarms{},
	} {
		if err := store.Setup(ctx, r); err != nil {
			log.WithError(err).Fatal("Cannot set up shared state")
		}
	}
	def := state.DefaultMissionStatus()
	if err := store.Setup(ctx, &def); err != nil {
		log.WithError(err).Fatal("Cannot set up shared state")
	}

	var notifier alarm.Notifier
	x := xmpp.Xmpp{Config: xmpp.Config{Host: *xmppHost, Jid: *xmppJid, Password: *xmppPassword, To: *xmppTo}}
	if x.Configured() {
		notifier = x
	}
	alarms := alarm.NewRaiser(store, notifier)

	link, err := otto.Open(*ottoDevice, *ottoBaud, store, alarms)
	if err != nil {
		log.WithError(err).Fatal("Cannot open controller link")
	}
	defer link.Close()

	ingest, err := gps.Open(*gpsDevice, *gpsBaud, store, alarms)
	if err != nil {
		log.WithError(err).Fatal("Cannot open gps")
	}
	defer ingest.Close()

	var forecast nav.WindSource
	if *gribDir != "" {
		f := wind.InitForecast(*gribDir)
		forecast = f
		logLaunchForecast(f, m)
	}

	var fence *land.Land
	if *landFile != "" {
		fence, err = land.Init(*landFile)
		if err != nil {
			log.WithError(err).Fatal("Cannot load forbidden region mask")
		}
	}

	navigator := nav.New(store, link, alarms, m.Attractors, m.Repellors, polar.ReferenceCurve(), forecast)
	loop := mission.NewLoop(store, navigator, alarms, fence)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := link.Sync(gctx); err != nil {
			return err
		}
		inner, ictx := errgroup.WithContext(gctx)
		inner.Go(func() error { return link.ReadLoop(ictx) })
		inner.Go(func() error { return link.WriteLoop(ictx) })
		return inner.Wait()
	})

	g.Go(func() error { return ingest.Run(gctx) })

	g.Go(func() error { return loop.Run(gctx) })

	srv := &http.Server{Addr: *httpAddr, Handler: handlers.CombinedLoggingHandler(os.Stdout, api.InitServer(store, m, alarms))}
	g.Go(func() error {
		log.Infof("Status api on %s", *httpAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.WithError(err).Fatal("Guidance core stopped")
	}
	log.Info("Clean shutdown")
}

func initLog(level, file string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Warnf("Unknown log level '%s', using info", level)
	}

	if file != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    32, // MB
			MaxBackups: 3,
			MaxAge:     14,
		})
	}
}

func logLaunchForecast(f *wind.Forecast, m *mission.Mission) {
	site := latlon.FromDegrees(m.Launch.Latitude, m.Launch.Longitude)
	w, err := f.WindAt(site, time.Now())
	if err != nil {
		log.WithError(err).Debug("No forecast at launch site")
		return
	}
	log.Infof("Forecast at %s: wind %.0f° %.1f kt", m.Launch.Site, latlon.ToDegrees(w.Angle), w.Distance)
}
