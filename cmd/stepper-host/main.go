package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"wipistepper/config"
	"wipistepper/core"
	"wipistepper/targets/rpi"
	"wipistepper/targets/sim"
)

var (
	configPath = flag.String("config", "", "JSON configuration file (defaults to a simulated board)")
	boardKind  = flag.String("board", "", "Board override: sim or rpi")
	verbose    = flag.Bool("verbose", false, "Log every duty write")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	fmt.Println("Stepper Host - interactive stepper motor console")
	fmt.Println("================================================")
	fmt.Println()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *boardKind != "" {
		cfg.Board.Kind = *boardKind
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	board, closeBoard, err := openBoard(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeBoard()

	con, err := newConsole(os.Stdout, board, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer con.Close()

	fmt.Printf("Board %s ready\n", cfg.Board.Kind)
	con.printInfo()

	// one handler for the whole session: Ctrl-C stops a running motion, at
	// the prompt it resets the pins before exiting
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	intr := &interrupter{onIdle: func() {
		fmt.Println("\nInterrupted, resetting pins")
		if err := con.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		closeBoard()
		os.Exit(130)
	}}
	go func() {
		for range sigs {
			intr.interrupt()
		}
	}()

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	fmt.Println("Ctrl-C interrupts a running motion.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		ctx, done := intr.begin(context.Background())
		err = con.Run(ctx, args)
		done()

		if err == errQuit {
			fmt.Println("Goodbye!")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// openBoard builds the board the configuration selects
func openBoard(cfg *config.Config) (core.Board, func() error, error) {
	switch cfg.Board.Kind {
	case config.BoardRpi:
		numbering, err := rpi.ParseNumbering(cfg.Board.Numbering)
		if err != nil {
			return nil, nil, err
		}
		b := rpi.NewBoard(numbering)
		return b, b.Close, nil
	case config.BoardSim:
		return sim.NewBoard(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown board kind %q", cfg.Board.Kind)
}
