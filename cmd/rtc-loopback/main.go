// rtc-loopback connects two peer connections of one context over the local
// network, exchanges data channel messages between them and streams video
// frames from one to the other through the deferred batch path.
//
// It exercises the whole stack a host would: config loading, the pion
// engine, the render thread, and context ownership of every wrapper.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/dispatch"
	"github.com/holochain/tx5-go-pion-rtc/internal/turnrelay"
	"github.com/holochain/tx5-go-pion-rtc/native/pionengine"
	"github.com/holochain/tx5-go-pion-rtc/rtc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	messages   int
	frames     int
	interval   time.Duration
	timeout    time.Duration
	turn       bool
	verbose    bool
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("rtc-loopback", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to a JSONC config file")
	flagSet.IntVar(&opts.messages, "messages", 10, "data channel messages to send")
	flagSet.IntVar(&opts.frames, "frames", 60, "video frames to push")
	flagSet.DurationVar(&opts.interval, "interval", time.Second/30, "delay between video frames")
	flagSet.DurationVar(&opts.timeout, "timeout", 30*time.Second, "give up after this long")
	flagSet.BoolVar(&opts.turn, "turn", false, "run a local TURN relay and offer it as an ICE server")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if opts.interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", opts.interval)
	}

	conf, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.verbose {
		conf.LogLevel = "debug"
	}

	log, err := conf.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	rtc.SetLogger(log)
	pionengine.SetLogger(log)

	if opts.turn {
		relay, err := turnrelay.Start(turnrelay.Config{Logger: log})
		if err != nil {
			return err
		}
		defer relay.Close()
		conf.ICEServers = append(conf.ICEServers, relay.ICEServer())
	}

	funcs := dispatch.NewFuncs(log)
	lo, hi := conf.PortRange()
	engine, err := pionengine.New(funcs, pionengine.Config{
		EphemeralUDPPortMin: lo,
		EphemeralUDPPortMax: hi,
		Logger:              log,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	rt := dispatch.StartRenderThread(funcs, log)
	defer rt.Stop()

	host := rtc.NewHost(engine, rt, conf.Options()...)
	defer host.OnHostShutdown()

	c, err := host.OnHostInit(conf.ContextID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	res, err := runLoopback(ctx, log, c, conf, opts)
	if err != nil {
		return err
	}

	log.Info("loopback finished",
		zap.Int("messagesSent", opts.messages),
		zap.Int("messagesReceived", res.messages),
		zap.Int("framesPushed", opts.frames),
		zap.Int("framesReceived", res.frames),
		zap.Duration("elapsed", res.elapsed))
	return nil
}

func loadConfig(path string) (*rtc.Config, error) {
	if path == "" {
		return rtc.ParseConfig([]byte("{}"))
	}
	return rtc.LoadConfig(path)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage: rtc-loopback [flags]

Connects two local peer connections, sends data channel messages and video
frames between them, and reports what arrived.

Flags:
%s`, flagSet.FlagUsages())
}
