package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Format renders m as a grouped decimal for the given locale, e.g.
// "1,234.50" for English or "1.234,50" for German. It is meant for display;
// use String for storage and wire formats.
func (m Money) Format(tag language.Tag) string {
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(m.Float64(), number.Scale(Scale)))
}

// FormatLocale is Format with a BCP 47 locale string. Unknown or malformed
// locales fall back to English.
func (m Money) FormatLocale(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return m.Format(tag)
}
