package templates

import (
	"fmt"
	"time"
)

const expiryLayout = "02 January 2006, 15:04 MST"

type Option func(*EmailData)

func WithActionURL(url string) Option { return func(d *EmailData) { d.ActionURL = url } }

// WithActionPage sets a link meant to be opened in a browser.
func WithActionPage(url string) Option {
	return func(d *EmailData) {
		d.ActionURL = url
		d.ActionIsPage = true
	}
}

// WithExpiry sets the absolute deadline and how long the link stays valid from now.
func WithExpiry(now, expiresAt time.Time) Option {
	return func(d *EmailData) {
		d.ExpiresAt = expiresAt.UTC()
		d.ExpiresAtText = d.ExpiresAt.Format(expiryLayout)
		d.ValidForText = humanDuration(expiresAt.Sub(now))
	}
}

func humanDuration(d time.Duration) string {
	switch m := int(d.Round(time.Minute) / time.Minute); {
	case m <= 1:
		return "1 minute"
	case m < 120:
		return fmt.Sprintf("%d minutes", m)
	default:
		return fmt.Sprintf("%d hours", m/60)
	}
}

// NewEmailData fills the common fields, then applies opts.
func NewEmailData(appName, name, email string, opts ...Option) EmailData {
	d := EmailData{Name: name, Email: email, AppName: appName}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}
