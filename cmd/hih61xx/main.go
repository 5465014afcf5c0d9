package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/mikesmitty/hih61xx"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

func main() {
	bus := flag.String("bus", "", "Name of the bus")
	addr := flag.Uint("addr", hih61xx.DefaultAddress, "I²C address of the sensor")
	power := flag.String("power-pin", "", "Name of the GPIO switching the sensor supply, empty if always powered")
	interval := flag.Duration("interval", 0, "Read continuously at this interval")
	verbose := flag.Bool("v", false, "Log state machine transitions")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	b, err := i2creg.Open(*bus)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to open I²C bus: %w", err))
	}
	defer b.Close()

	opts := hih61xx.DefaultOpts()
	opts.I2cAddress = uint16(*addr)
	opts.Logger = logger
	if *power != "" {
		p := gpioreg.ByName(*power)
		if p == nil {
			log.Fatalf("unknown power pin %q", *power)
		}
		opts.PowerPin = p
	}

	dev, err := hih61xx.New(b, opts)
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Halt()

	if *interval == 0 {
		if err := readOnce(dev, logger); err != nil {
			log.Fatal(err)
		}
		return
	}

	ch, err := dev.SenseContinuous(*interval)
	if err != nil {
		log.Fatal(err)
	}
	for e := range ch {
		fmt.Printf("Temperature: %0.2f\nHumidity: %s\n", e.Temperature.Celsius(), e.Humidity)
	}
}

func readOnce(dev *hih61xx.Dev, logger *slog.Logger) error {
	start := time.Now()
	var e physic.Env
	if err := dev.Sense(&e); err != nil {
		return err
	}
	fmt.Printf("Temperature: %0.2f\nHumidity: %s\n", e.Temperature.Celsius(), e.Humidity)
	logger.Debug("cycle", "duration", time.Since(start), "status", dev.Reading().Status)
	return nil
}
