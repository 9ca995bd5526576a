// Command eboardboot triggers execution of the firmware resident on the
// Flashforge 5M Eboard MCU by talking to its bootloader.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/ff5m/eboardboot/eboard"
)

var connTo = flag.String("c", eboard.DefaultLink, "connection string, use socket://[host]:[port] for TCP or [serialDevice] for direct serial connection")
var baud = flag.Int("b", eboard.DefaultBaud, "baud rate")
var readyAttempts = flag.Int("ready-attempts", eboard.DefaultAttempts, "number of reads while waiting for the bootloader beacon")
var triggerAttempts = flag.Int("trigger-attempts", eboard.DefaultAttempts, "number of start commands sent while waiting for ACK")
var readTimeout = flag.Duration("timeout", 0, "deadline per read, 0 blocks until data arrives; serial links round it to 0.1s, allow at most 25.5s and read a hangup as silence once it is set")
var strict = flag.Bool("strict", false, "exit with 2 unless the MCU acknowledged the start command")
var httpServe = flag.String("s", "", "start http server at [bindtohost][:]port after the first handshake")
var verbose = flag.Bool("v", false, "verbose logging")

// To be set via go build -ldflags "-X main.buildVersion=$(git describe --dirty) -X main.buildDate=$(date -u +%FT%TZ)"
var buildVersion = "unspecified"
var buildDate = "unknown"

func configFromFlags() eboard.Config {
	cfg := eboard.DefaultConfig()
	cfg.Link = *connTo
	cfg.Baud = *baud
	cfg.ReadyAttempts = *readyAttempts
	cfg.TriggerAttempts = *triggerAttempts
	cfg.ReadTimeout = *readTimeout
	if *strict {
		cfg.Policy = eboard.PolicyStrict
	}
	return cfg
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	log.SetOutput(os.Stdout)
	if *verbose {
		log.SetLevel(log.DebugLevel)
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer stop()
	go func() {
		// first signal interrupts the handshake, a second one gets the default behaviour
		<-ctx.Done()
		stop()
	}()

	driver, err := eboard.NewDriver(configFromFlags(), eboard.WithLogger(log.StandardLogger()))
	if err != nil {
		log.Error(err)
		return eboard.ExitFailure
	}

	rep := driver.Run(ctx)
	log.WithFields(log.Fields{
		"ready": rep.Ready,
		"ack":   rep.Ack,
		"state": rep.State,
	}).Debugf("Handshake finished with exit code %d", rep.ExitCode)

	if *httpServe == "" {
		return rep.ExitCode
	}

	// accept :[portnum] as well as [portnum]
	addr := *httpServe
	if i, err := strconv.Atoi(addr); err == nil {
		addr = fmt.Sprintf(":%d", i)
	}

	s := newServer(driver, buildVersion, buildDate)
	s.setLast(rep)
	h := &http.Server{Addr: addr, Handler: s.router()}
	go func() {
		<-ctx.Done()
		h.Close()
	}()

	log.Infof("Serving on %v", addr)
	return serveExitCode(rep, h.ListenAndServe())
}

// serveExitCode keeps the result of the startup handshake once the server
// has shut down cleanly.
func serveExitCode(startup eboard.Report, err error) int {
	if err != nil && err != http.ErrServerClosed {
		log.Error(err)
		return eboard.ExitFailure
	}
	return startup.ExitCode
}
