package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glowd/internal/config"
	"glowd/internal/gpio"
	"glowd/internal/hwpwm"
	"glowd/internal/led"
	"glowd/internal/softpwm"
	"glowd/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./glowd.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dimmers, err := openChannels(cfg.LED)
	if err != nil {
		log.Fatalf("channel init failed: %v", err)
	}

	ctl, err := led.New(dimmers[0], dimmers[1], dimmers[2], led.Config{
		FrequencyHz: cfg.LED.FrequencyHz,
		Breathe: led.BreatheConfig{
			Enable: cfg.LED.Breathe.Enable,
			RateHz: cfg.LED.Breathe.RateHz,
			Steps:  cfg.LED.Breathe.Steps,
		},
	})
	if err != nil {
		closeAll(dimmers)
		log.Fatalf("led controller init failed: %v", err)
	}
	defer ctl.Close()

	if err := ctl.Start(ctx); err != nil {
		log.Fatalf("led controller start failed: %v", err)
	}
	if err := ctl.SetColor(led.Color{R: cfg.LED.Color.R, G: cfg.LED.Color.G, B: cfg.LED.Color.B}); err != nil {
		log.Printf("initial color failed: %v", err)
	}

	settings := web.SettingsStore{
		ConfigPath: configPath,
		Apply: func(c config.Config) error {
			if err := ctl.SetFrequency(c.LED.FrequencyHz); err != nil {
				return err
			}
			if err := ctl.SetColor(led.Color{R: c.LED.Color.R, G: c.LED.Color.G, B: c.LED.Color.B}); err != nil {
				return err
			}
			return ctl.SetBreathe(c.LED.Breathe.Enable, c.LED.Breathe.RateHz)
		},
	}

	srv := &http.Server{
		Addr:              cfg.Web.Listen,
		Handler:           web.Handler(ctl, settings),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
			log.Printf("web server stopped: %v", err)
			cancel()
		}
	}()

	log.Printf("glowd starting")
	log.Printf("led backend=%s frequency=%.1fHz breathe=%v web=%s",
		cfg.LED.Backend, cfg.LED.FrequencyHz, cfg.LED.Breathe.Enable, cfg.Web.Listen)

	<-ctx.Done()
	log.Printf("glowd stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// openChannels acquires the red, green and blue channels in that order.
// A leg with pwm_chip set uses the platform's hardware PWM; everything else
// runs the software engine on the configured GPIO backend.
func openChannels(ledCfg config.LEDConfig) ([]led.Dimmer, error) {
	channels := []config.ChannelConfig{
		ledCfg.Channels.Red,
		ledCfg.Channels.Green,
		ledCfg.Channels.Blue,
	}

	dimmers := make([]led.Dimmer, 0, len(channels))
	for _, ch := range channels {
		d, err := openChannel(ledCfg, ch)
		if err != nil {
			closeAll(dimmers)
			return nil, err
		}
		dimmers = append(dimmers, d)
	}
	return dimmers, nil
}

func openChannel(ledCfg config.LEDConfig, ch config.ChannelConfig) (led.Dimmer, error) {
	if ch.PWMChip != "" {
		return hwpwm.Open(ch.PWMChip, ch.PWMChannel)
	}
	pin, err := gpio.Open(ch.GPIO, ledCfg.Backend)
	if err != nil {
		return nil, err
	}
	channel, err := softpwm.New(pin, softpwm.Config{FrequencyHz: ledCfg.FrequencyHz})
	if err != nil {
		_ = pin.Close()
		return nil, err
	}
	return channel, nil
}

func closeAll(ds []led.Dimmer) {
	for _, d := range ds {
		_ = d.Close()
	}
}
