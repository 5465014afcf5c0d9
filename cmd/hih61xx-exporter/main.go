package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/mikesmitty/hih61xx"
)

// CLI args
var (
	listenAddr   = flag.String("listen-address", ":8080", "The address to listen on for HTTP requests.")
	busName      = flag.String("bus", "", "Name of the I²C bus")
	sensorAddr   = flag.Uint("addr", hih61xx.DefaultAddress, "I²C address of the sensor")
	powerPin     = flag.String("power-pin", "", "GPIO switching the sensor supply, empty if always powered")
	readInterval = flag.Duration("read-int", 30*time.Second, "time interval between sensor reads")
	pollInterval = flag.Duration("poll-int", 5*time.Millisecond, "time interval between state machine steps")
	debug        = flag.Bool("debug", false, "enable debug logging")
)

// metrics to expose to Prometheus
var (
	gaugeHumidity    = newGauge("hih61xx_humidity", "Relative humidity (units: %)")
	gaugeTemperature = newGauge("hih61xx_temperature", "Ambient temperature (units: degrees Celsius)")
	gaugeStatus      = newGauge("hih61xx_status", "Status of the last reading (0 normal, 1 stale data, 2 command mode, 3 not used, 4 uninitialised, 5 timeout)")

	counterCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hih61xx_cycles_total",
			Help: "Completed measurement cycles",
		},
		[]string{"address"},
	)
	counterErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hih61xx_errors_total",
			Help: "Failed measurement cycles by phase",
		},
		[]string{"address", "phase"},
	)
)

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{"address"},
	)
}

func init() {
	prometheus.MustRegister(gaugeHumidity)
	prometheus.MustRegister(gaugeTemperature)
	prometheus.MustRegister(gaugeStatus)
	prometheus.MustRegister(counterCycles)
	prometheus.MustRegister(counterErrors)

	// Add Go module build info.
	prometheus.MustRegister(prometheus.NewBuildInfoCollector())

	//logging
	formatter := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(formatter)
}

func main() {
	flag.Parse()
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	drv, b, err := openSensor()
	if err != nil {
		log.Fatalf("failed to open sensor: %s", err)
	}
	defer b.Close()

	go func() {
		mux := http.NewServeMux()
		// Expose the registered metrics via HTTP.
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{
				// Opt into OpenMetrics to support exemplars.
				EnableOpenMetrics: true,
			},
		))
		// Scrapers may speak HTTP/2 without TLS.
		srv := &http.Server{
			Addr:    *listenAddr,
			Handler: h2c.NewHandler(mux, &http2.Server{}),
		}
		log.Panic(srv.ListenAndServe())
	}()
	log.Infof("serving metrics on %s for %s", *listenAddr, drv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	run(ctx, drv)
}

func openSensor() (*hih61xx.Driver, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, errors.Wrap(err, "host init failed")
	}
	b, err := i2creg.Open(*busName)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open I²C bus")
	}

	cfg := hih61xx.Config{
		Address:       uint16(*sensorAddr),
		BusConfigured: true,
	}
	if *powerPin != "" {
		p := gpioreg.ByName(*powerPin)
		if p == nil {
			b.Close()
			return nil, nil, errors.Errorf("unknown power pin %q", *powerPin)
		}
		cfg.PowerPin = hih61xx.PeriphPin(p, func(err error) {
			log.Errorf("power pin: %s", err)
		})
	}

	drv := hih61xx.NewDriver(hih61xx.PeriphBus(b), cfg)
	label := addressLabel(drv)
	drv.SetPowerUpErrorHandler(func(d *hih61xx.Driver) {
		counterErrors.WithLabelValues(label, "power_up").Inc()
		log.Errorf("sensor %s did not acknowledge: %s", d, d.Err())
	})
	drv.SetReadErrorHandler(func(d *hih61xx.Driver) {
		counterErrors.WithLabelValues(label, "read").Inc()
		log.Errorf("failed to read from sensor %s: %s", d, d.Err())
	})
	if err := drv.Initialise(); err != nil {
		b.Close()
		return nil, nil, errors.Wrap(err, "failed to initialise sensor")
	}
	return drv, b, nil
}

// run drives the sensor from a single loop, starting a cycle every read
// interval and stepping it every poll interval.
func run(ctx context.Context, drv *hih61xx.Driver) {
	read := time.NewTicker(*readInterval)
	defer read.Stop()
	poll := time.NewTicker(*pollInterval)
	defer poll.Stop()

	drv.Start()
	for {
		select {
		case <-ctx.Done():
			log.Infof("shutting down")
			drv.Finish()
			return
		case <-read.C:
			if drv.IsSampling() {
				log.Warnf("cycle still running after %s (phase %s), restarting", *readInterval, drv.Phase())
			}
			drv.Start()
		case <-poll.C:
			if !drv.IsSampling() {
				continue
			}
			drv.Process()
			if drv.IsFinished() {
				publish(drv)
			}
		}
	}
}

func publish(drv *hih61xx.Driver) {
	label := addressLabel(drv)
	r := drv.Reading()
	counterCycles.WithLabelValues(label).Inc()
	gaugeStatus.WithLabelValues(label).Set(float64(r.Status))

	if !r.Valid() {
		// Stop reporting stale values rather than export the sentinels.
		gaugeHumidity.DeleteLabelValues(label)
		gaugeTemperature.DeleteLabelValues(label)
		return
	}
	log.Debugf("Received: temperature %d humidity %d status %s", r.AmbientTemp, r.RelHumidity, r.Status)
	gaugeHumidity.WithLabelValues(label).Set(float64(r.RelHumidity) / 100)
	gaugeTemperature.WithLabelValues(label).Set(float64(r.AmbientTemp) / 100)
}

func addressLabel(drv *hih61xx.Driver) string {
	return fmt.Sprintf("0x%02x", drv.Address())
}
