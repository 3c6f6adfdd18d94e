package overlay

import (
	"fmt"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format styles.
const (
	StyleNumber   = "number"
	StylePercent  = "percent"
	StyleCurrency = "currency"
)

const maxDecimals = 6

var printer = message.NewPrinter(language.English)

// Format is the declarative formatter of an overlay's values. Ratios stored
// as fractions use StylePercent, which scales by 100.
type Format struct {
	Style    string `yaml:"style" json:"style,omitempty"`
	Decimals int    `yaml:"decimals" json:"decimals"`
	Suffix   string `yaml:"suffix" json:"suffix,omitempty"`
}

// Validate rejects unknown styles and unreasonable precision.
func (f Format) Validate() error {
	switch f.Style {
	case "", StyleNumber, StylePercent, StyleCurrency:
	default:
		return eris.Errorf("format: unknown style %q", f.Style)
	}
	if f.Decimals < 0 || f.Decimals > maxDecimals {
		return eris.Errorf("format: decimals must be between 0 and %d, got %d", maxDecimals, f.Decimals)
	}
	return nil
}

// Value renders v for display.
func (f Format) Value(v float64) string {
	verb := fmt.Sprintf("%%.%df", f.Decimals)
	switch f.Style {
	case StylePercent:
		return printer.Sprintf(verb, v*100) + "%" + f.Suffix
	case StyleCurrency:
		return "$" + printer.Sprintf(verb, v) + f.Suffix
	default:
		return printer.Sprintf(verb, v) + f.Suffix
	}
}
