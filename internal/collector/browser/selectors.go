package browser

// Card id strategies, tried in the order listed in Selectors.IDStrategies.
const (
	IDFromCardAttr   = "card_attr"
	IDFromLinkAttr   = "link_attr"
	IDFromPlaceToken = "place_token"
	IDFromHref       = "href"
)

// Selectors holds every CSS selector and fallback chain the collector uses.
// Chains are tried in order and the first match wins.
type Selectors struct {
	ConsentButtons []string `mapstructure:"consent_buttons"`
	SearchInputs   []string `mapstructure:"search_inputs"`
	Feed           string   `mapstructure:"feed"`
	Cards          []string `mapstructure:"cards"`
	CardLink       string   `mapstructure:"card_link"`
	IDAttribute    string   `mapstructure:"id_attribute"`
	IDStrategies   []string `mapstructure:"id_strategies"`
	DetailPanel    string   `mapstructure:"detail_panel"`
	Name           []string `mapstructure:"name"`
	Address        string   `mapstructure:"address"`
	Phone          string   `mapstructure:"phone"`
	Website        string   `mapstructure:"website"`
	Rating         string   `mapstructure:"rating"`
	Category       string   `mapstructure:"category"`
	Status         []string `mapstructure:"status"`
	ClosedMarkers  []string `mapstructure:"closed_markers"`
}

// DefaultSelectors returns the selectors for the current Google Maps markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ConsentButtons: []string{
			`button[aria-label="Accept all"]`,
			`button[aria-label="Aceptar todo"]`,
			`form[action*="consent"] button`,
		},
		SearchInputs: []string{`#searchboxinput`, `input[name="q"]`},
		Feed:         `div[role="feed"]`,
		Cards: []string{
			`div.Nv2PK`,
			`div[role="feed"] div[jsaction][role="article"]`,
			`a.hfpxzc`,
		},
		CardLink:     `a[href]`,
		IDAttribute:  "data-item-id",
		IDStrategies: []string{IDFromCardAttr, IDFromLinkAttr, IDFromPlaceToken, IDFromHref},
		DetailPanel:  `div[role="main"]`,
		Name:         []string{`h1.DUwDvf`, `h1`},
		Address:      `button[data-item-id="address"]`,
		Phone:        `button[data-item-id^="phone"]`,
		Website:      `a[data-item-id="authority"]`,
		Rating:       `div.F7nice`,
		Category:     `button.DkEaL`,
		Status:       []string{`span.fCEvvc`, `div.o0Svhf`, `div.MkV9`},
		ClosedMarkers: []string{
			"Permanently closed",
			"Temporarily closed",
			"Cerrado permanentemente",
			"Cerrado temporalmente",
		},
	}
}

// merge fills empty fields of s from def.
func (s Selectors) merge(def Selectors) Selectors {
	if len(s.ConsentButtons) == 0 {
		s.ConsentButtons = def.ConsentButtons
	}
	if len(s.SearchInputs) == 0 {
		s.SearchInputs = def.SearchInputs
	}
	if s.Feed == "" {
		s.Feed = def.Feed
	}
	if len(s.Cards) == 0 {
		s.Cards = def.Cards
	}
	if s.CardLink == "" {
		s.CardLink = def.CardLink
	}
	if s.IDAttribute == "" {
		s.IDAttribute = def.IDAttribute
	}
	if len(s.IDStrategies) == 0 {
		s.IDStrategies = def.IDStrategies
	}
	if s.DetailPanel == "" {
		s.DetailPanel = def.DetailPanel
	}
	if len(s.Name) == 0 {
		s.Name = def.Name
	}
	if s.Address == "" {
		s.Address = def.Address
	}
	if s.Phone == "" {
		s.Phone = def.Phone
	}
	if s.Website == "" {
		s.Website = def.Website
	}
	if s.Rating == "" {
		s.Rating = def.Rating
	}
	if s.Category == "" {
		s.Category = def.Category
	}
	if len(s.Status) == 0 {
		s.Status = def.Status
	}
	if len(s.ClosedMarkers) == 0 {
		s.ClosedMarkers = def.ClosedMarkers
	}
	return s
}
