//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"

	"glowd/internal/softpwm"
)

// openGpiod requests the BCM GPIO as an output line through the Linux GPIO
// character device (libgpiod).
func openGpiod(pin int) (softpwm.Pin, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("gpio: invalid gpio pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO17", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	// Try likely chips first (Pi 5 kernel variants can expose header GPIOs
	// on gpiochip0 and sometimes additional chips exist).
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("glowd"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodPin{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("gpio: line %q not found (or busy)", lineName)
}

type gpiodPin struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (p *gpiodPin) SetOutput() error {
	if p.line == nil {
		return fmt.Errorf("gpio: line not initialized")
	}
	return p.line.Reconfigure(gpiocdev.AsOutput(0))
}

func (p *gpiodPin) High() error {
	if p.line == nil {
		return fmt.Errorf("gpio: line not initialized")
	}
	return p.line.SetValue(1)
}

func (p *gpiodPin) Low() error {
	if p.line == nil {
		return fmt.Errorf("gpio: line not initialized")
	}
	return p.line.SetValue(0)
}

func (p *gpiodPin) Close() error {
	if p.line == nil {
		return nil
	}
	// Leave the LED dark on release.
	_ = p.line.SetValue(0)
	err := p.line.Close()
	p.line = nil
	if p.chip != nil {
		_ = p.chip.Close()
		p.chip = nil
	}
	return err
}
