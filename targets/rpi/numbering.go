package rpi

import (
	"fmt"

	"wipistepper/core"
)

// Numbering selects how core.Pin values map to BCM GPIO lines
type Numbering uint8

const (
	// NumberingWiringPi uses the wiringPi scheme, where pin 1 is BCM 18 (PWM0)
	NumberingWiringPi Numbering = iota
	// NumberingBCM uses Broadcom GPIO numbers directly
	NumberingBCM
)

func (n Numbering) String() string {
	if n == NumberingBCM {
		return "bcm"
	}
	return "wiringpi"
}

// ParseNumbering accepts "wiringpi" or "bcm"
func ParseNumbering(s string) (Numbering, error) {
	switch s {
	case "", "wiringpi", "wpi":
		return NumberingWiringPi, nil
	case "bcm", "gpio":
		return NumberingBCM, nil
	}
	return 0, fmt.Errorf("unknown pin numbering %q", s)
}

// wiringPiToBCM covers the 40 pin header (wiringPi 0-31)
var wiringPiToBCM = [...]uint8{
	17, 18, 27, 22, 23, 24, 25, 4, // 0-7
	2, 3, 8, 7, 10, 9, 11, 14, // 8-15
	15, 28, 29, 30, 31, 5, 6, 13, // 16-23
	19, 26, 12, 16, 20, 21, 0, 1, // 24-31
}

// pwmCapable lists the BCM lines with a hardware PWM alternate function
var pwmCapable = map[uint8]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}

// BCM translates pin to its Broadcom line number
func (n Numbering) BCM(pin core.Pin) (uint8, error) {
	if n == NumberingBCM {
		if pin > 53 {
			return 0, fmt.Errorf("invalid bcm pin %d", pin)
		}
		return uint8(pin), nil
	}
	if int(pin) >= len(wiringPiToBCM) {
		return 0, fmt.Errorf("invalid wiringPi pin %d", pin)
	}
	return wiringPiToBCM[pin], nil
}
