package core

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Session is the mutable per-conversation record of shipping
// destination, last search and current selection. It is never shared
// between in-flight turns, so it carries no lock; isolation is the
// conversation store's job.
type Session struct {
	ID string `json:"id"`

	LastShipsTo string   `json:"last_ships_to,omitempty"`
	LastQuery   string   `json:"last_query,omitempty"`
	LastOptions []Option `json:"last_options,omitempty"`

	// Zero means unset. SelectedOption refers to Option.OptionIndex in
	// LastOptions; both selection fields are cleared whenever
	// LastOptions is replaced, so a set value always resolves.
	SelectedOption   int `json:"selected_option,omitempty"`
	SelectedQuantity int `json:"selected_quantity,omitempty"`
}

// NewSession returns an empty session.
func NewSession(id string) *Session {
	return &Session{ID: id}
}

// ClearSelection unsets both selection fields. They travel together:
// a quantity without an option is meaningless.
func (s *Session) ClearSelection() {
	s.SelectedOption = 0
	s.SelectedQuantity = 0
}

// Select records a user's option/quantity choice. Zero quantity leaves
// the previous quantity in place so "option 2" then "make it 3" works.
func (s *Session) Select(option, quantity int) {
	if option > 0 {
		s.SelectedOption = option
	}
	if quantity > 0 {
		s.SelectedQuantity = quantity
	}
}

// CheckoutURLFor resolves the checkout URL of the option whose
// OptionIndex equals index in the current LastOptions. It is the sole
// authority for "what URL does option N point to right now". Returns
// "" for an unknown index or an option with no checkout URL.
func (s *Session) CheckoutURLFor(index int) string {
	if index <= 0 {
		return ""
	}
	for _, opt := range s.LastOptions {
		if opt.OptionIndex == index {
			return opt.CheckoutURL
		}
	}
	return ""
}

// OptionFor returns the option with the given index, if present.
func (s *Session) OptionFor(index int) (Option, bool) {
	for _, opt := range s.LastOptions {
		if opt.OptionIndex == index {
			return opt, true
		}
	}
	return Option{}, false
}

// searchWire is the catalog search result as it appears on the wire.
// Two shapes arrive in practice: a flat {ok, ships_to, query, options}
// object and a wrapped {ok:true, data:{...}} envelope. Options is a
// pointer so "absent" and "present but empty" stay distinguishable.
type searchWire struct {
	OK      *bool           `json:"ok"`
	Data    json.RawMessage `json:"data,omitempty"`
	ShipsTo string          `json:"ships_to"`
	Query   string          `json:"query"`
	Options *[]optionWire   `json:"options"`
}

type optionWire struct {
	Title       string   `json:"title"`
	Price       any      `json:"price"`
	Currency    string   `json:"currency"`
	Seller      string   `json:"seller"`
	Bullets     []string `json:"bullets"`
	ProductURL  string   `json:"product_url"`
	CheckoutURL string   `json:"checkout_url"`
}

// ApplySearchResult folds a raw catalog-search result into the session.
// On a structurally valid success it replaces LastOptions wholesale
// (including with an empty list), updates LastQuery and, when present,
// LastShipsTo, and unconditionally clears the selection: new results
// invalidate any prior selection by index. On anything else (error
// envelope, malformed JSON, missing options) the session is left
// untouched. Returns whether the session was mutated.
func (s *Session) ApplySearchResult(raw string) bool {
	var wire searchWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return false
	}
	if wire.OK == nil || !*wire.OK {
		return false
	}

	// Unwrap {ok:true, data:{...}}.
	if wire.Options == nil && len(wire.Data) > 0 {
		var inner searchWire
		if err := json.Unmarshal(wire.Data, &inner); err != nil {
			return false
		}
		if inner.OK != nil && !*inner.OK {
			return false
		}
		inner.OK = wire.OK
		wire = inner
	}
	if wire.Options == nil {
		return false
	}

	s.LastOptions = normalizeOptions(*wire.Options)
	s.LastQuery = wire.Query
	if code := normalizeCountry(wire.ShipsTo); code != "" {
		s.LastShipsTo = code
	}
	s.ClearSelection()
	return true
}

// normalizeOptions converts wire options into canonical Options,
// assigning 1-based indexes. The index is stable within one search
// result only, not a database key.
func normalizeOptions(wire []optionWire) []Option {
	opts := make([]Option, 0, len(wire))
	for i, w := range wire {
		opt := Option{
			OptionIndex: i + 1,
			Title:       strings.TrimSpace(w.Title),
			Price:       formatPrice(w.Price),
			Currency:    strings.TrimSpace(w.Currency),
			Seller:      strings.TrimSpace(w.Seller),
			ProductURL:  strings.TrimSpace(w.ProductURL),
			CheckoutURL: strings.TrimSpace(w.CheckoutURL),
		}
		if opt.Seller == "" {
			opt.Seller = hostOf(opt.ProductURL)
		}
		for _, b := range w.Bullets {
			b = strings.TrimSpace(b)
			if b == "" {
				continue
			}
			opt.Bullets = append(opt.Bullets, b)
			if len(opt.Bullets) == 3 {
				break
			}
		}
		opts = append(opts, opt)
	}
	return opts
}

func formatPrice(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(p)
	case float64:
		if p == float64(int64(p)) {
			return fmt.Sprintf("%d", int64(p))
		}
		return fmt.Sprintf("%.2f", p)
	default:
		return ""
	}
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// normalizeCountry reduces a destination to an upper-cased two-letter
// code, or "" when it is not one.
func normalizeCountry(v string) string {
	v = strings.TrimSpace(v)
	if len(v) != 2 {
		return ""
	}
	return strings.ToUpper(v)
}

// SummarizeOptions renders options as one line each for the planning
// context. Near-duplicates (same title, price, seller and first two
// bullets) collapse to one line and output is capped. This is a lossy,
// display-only projection; nothing parses it back.
func SummarizeOptions(options []Option, limit int) string {
	if limit <= 0 {
		limit = 8
	}
	seen := make(map[string]bool, len(options))
	var lines []string
	for _, opt := range options {
		key := dedupeKey(opt)
		if seen[key] {
			continue
		}
		seen[key] = true
		lines = append(lines, summarizeOption(opt))
		if len(lines) == limit {
			break
		}
	}
	return strings.Join(lines, "\n")
}

func dedupeKey(opt Option) string {
	bullets := opt.Bullets
	if len(bullets) > 2 {
		bullets = bullets[:2]
	}
	return strings.ToLower(opt.Title) + "|" + opt.Price + "|" + opt.Seller + "|" + strings.Join(bullets, "|")
}

func summarizeOption(opt Option) string {
	price := opt.Price
	if price == "" {
		price = "n/a"
	} else if opt.Currency != "" {
		price = price + " " + opt.Currency
	}
	seller := opt.Seller
	if seller == "" {
		seller = "unknown"
	}
	line := fmt.Sprintf("Option %d: %s — %s — seller: %s", opt.OptionIndex, opt.Title, price, seller)
	if len(opt.Bullets) > 0 {
		line += " — " + strings.Join(opt.Bullets, "; ")
	}
	return line
}
