package browser

import "context"

// Option is one <option> of a <select>.
type Option struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// Page is the slice of a browser tab the scrape pipeline needs. Selectors are
// CSS selectors. Every call honors ctx cancellation and deadline.
//
// note: fault injection point
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error

	// Options lists the options of a <select>, a missing element yields no
	// options and no error so that callers can poll on it.
	Options(ctx context.Context, selector string) ([]Option, error)
	// Select sets the value of a <select> and fires its change handlers.
	Select(ctx context.Context, selector, value string) error

	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// Fill replaces the value of a text input by typing into it.
	Fill(ctx context.Context, selector, text string) error
	Attribute(ctx context.Context, selector, name string) (value string, ok bool, err error)

	// Screenshot captures the element as a png.
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	Close() error
}
