// Command steppertest runs the bench sequence on a Raspberry Pi with the
// driver wired to wiringPi pins 0 (enable), 1 (clock) and 2 (direction).
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"wipistepper/demo"
	"wipistepper/targets/rpi"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	board := rpi.NewBoard(rpi.NumberingWiringPi)
	dcfg, mcfg := demo.Config()
	err := demo.Run(ctx, board, dcfg, mcfg, os.Stdout, log)
	if cerr := board.Close(); cerr != nil {
		log.WithError(cerr).Warn("closing gpio failed")
	}
	if err != nil {
		log.WithError(err).Error("steppertest failed")
		os.Exit(1)
	}
}
