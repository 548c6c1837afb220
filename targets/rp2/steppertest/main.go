//go:build rp2040 || rp2350

// Firmware running the bench sequence from an RP2 board, with the driver on
// GPIO0 (enable), GPIO1 (clock) and GPIO2 (direction). Output goes to the
// default serial console.
package main

import (
	"context"
	"machine"
	"time"

	"github.com/sirupsen/logrus"

	"wipistepper/demo"
	"wipistepper/targets/rp2"
)

func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		time.Sleep(150 * time.Millisecond)
		led.Low()
		time.Sleep(150 * time.Millisecond)
	}
}

func main() {
	// give the USB console time to enumerate
	time.Sleep(2 * time.Second)

	log := logrus.New()
	log.SetOutput(machine.Serial)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})

	board := rp2.NewBoard(0)
	dcfg, mcfg := demo.Config()
	if err := demo.Run(context.Background(), board, dcfg, mcfg, machine.Serial, log); err != nil {
		log.WithError(err).Error("steppertest failed")
		for {
			ledBlink(3)
			time.Sleep(time.Second)
		}
	}

	for {
		ledBlink(1)
		time.Sleep(2 * time.Second)
	}
}
