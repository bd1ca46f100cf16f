package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
)

const detailHTML = `<div role="main" aria-label="Cerrajería Norte">
  <h1 class="DUwDvf">Cerrajería Norte</h1>
  <div class="F7nice"><span>4,7</span><span>(1.234)</span></div>
  <button class="DkEaL">Locksmith</button>
  <button data-item-id="address" aria-label="Address: Av. Amazonas N34-12, Quito"></button>
  <button data-item-id="phone:tel:022456789" aria-label="Phone: 02-245-6789"></button>
</div>`

func TestCardExternalIDStrategies(t *testing.T) {
	t.Parallel()

	sel := DefaultSelectors()
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "card attribute",
			html: `<div class="Nv2PK" data-item-id="card-1"><a href="https://maps/x" data-item-id="link-1"></a></div>`,
			want: "card-1",
		},
		{
			name: "link attribute",
			html: `<div class="Nv2PK"><a class="hfpxzc" href="https://maps/x" data-item-id="link-1"></a></div>`,
			want: "link-1",
		},
		{
			name: "place token",
			html: `<div class="Nv2PK"><a href="https://www.google.com/maps/place/X/data=!4m7!3m6!1s0x91d59a:0x2f1c!8m2!19sChIJabc-123?authuser=0"></a></div>`,
			want: "ChIJabc-123",
		},
		{
			name: "hex token",
			html: `<a class="hfpxzc" href="https://www.google.com/maps/place/X/data=!4m7!3m6!1s0x91d59a:0x2f1c!8m2"></a>`,
			want: "0x91d59a:0x2f1c",
		},
		{
			name: "href fallback",
			html: `<div class="Nv2PK"><a href="https://www.google.com/maps/place/Plain"></a></div>`,
			want: "https://www.google.com/maps/place/Plain",
		},
		{
			name: "nothing",
			html: `<div class="Nv2PK"><span>no link</span></div>`,
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, err := parseCard(tc.html, sel.CardLink)
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.externalID(sel))
		})
	}
}

func TestCardExternalIDHonorsStrategyOrder(t *testing.T) {
	t.Parallel()

	sel := DefaultSelectors()
	sel.IDStrategies = []string{IDFromHref, IDFromCardAttr}
	c, err := parseCard(`<div data-item-id="card-1"><a href="https://maps/x"></a></div>`, sel.CardLink)
	require.NoError(t, err)
	assert.Equal(t, "https://maps/x", c.externalID(sel))
}

func TestDetailCandidate(t *testing.T) {
	t.Parallel()

	sel := DefaultSelectors()
	d, err := parseDetail(detailHTML, sel)
	require.NoError(t, err)
	c, err := parseCard(`<div class="Nv2PK" aria-label="Card Label"></div>`, sel.CardLink)
	require.NoError(t, err)

	assert.Empty(t, d.website())
	got := d.candidate("ChIJ1", c, "https://www.google.com/maps/place/x")
	assert.Equal(t, "ChIJ1", got.ExternalID)
	assert.Equal(t, "Cerrajería Norte", got.Name)
	assert.Equal(t, "Av. Amazonas N34-12, Quito", got.Address)
	assert.Equal(t, "02-245-6789", got.Phone)
	assert.Equal(t, 1234, got.ReviewCount)
	require.NotNil(t, got.Rating)
	assert.InDelta(t, 4.7, *got.Rating, 0.001)
	assert.Equal(t, lead.OperatingStatusOperating, got.OperatingStatus)
	assert.Equal(t, "Locksmith", got.BusinessType)
	assert.Equal(t, "https://www.google.com/maps/place/x", got.MapsURL)
}

func TestDetailMissingFieldsAreEmpty(t *testing.T) {
	t.Parallel()

	sel := DefaultSelectors()
	d, err := parseDetail(`<div role="main"><span class="fCEvvc">Permanently closed</span></div>`, sel)
	require.NoError(t, err)
	c, err := parseCard(`<div aria-label="Fallback Name"></div>`, sel.CardLink)
	require.NoError(t, err)

	got := d.candidate("id", c, "")
	assert.Equal(t, "Fallback Name", got.Name)
	assert.Empty(t, got.Address)
	assert.Empty(t, got.Phone)
	assert.Nil(t, got.Rating)
	assert.Zero(t, got.ReviewCount)
	assert.Equal(t, lead.OperatingStatusClosed, got.OperatingStatus)
}

func TestDetailClosedMarkersOnlyInStatusLine(t *testing.T) {
	t.Parallel()

	sel := DefaultSelectors()
	d, err := parseDetail(`<div role="main"><h1>Plomeria Andes</h1><div class="F7nice">4.7(42)</div>`+
		`<div class="o0Svhf">Open 24 hours</div>`+
		`<div class="review">Great work, even when the mall shop was temporarily closed</div></div>`, sel)
	require.NoError(t, err)
	c, err := parseCard(`<div class="Nv2PK"></div>`, sel.CardLink)
	require.NoError(t, err)
	got := d.candidate("id", c, "")
	assert.Equal(t, lead.OperatingStatusOperating, got.OperatingStatus)
	assert.Equal(t, 42, got.ReviewCount)

	d, err = parseDetail(`<div role="main"><div class="o0Svhf">Cerrado temporalmente</div></div>`, sel)
	require.NoError(t, err)
	assert.Equal(t, lead.OperatingStatusClosed, d.operatingStatus())
}

func TestDetailWebsite(t *testing.T) {
	t.Parallel()

	d, err := parseDetail(`<div><a data-item-id="authority" href=" https://plomeria.ec "></a></div>`, DefaultSelectors())
	require.NoError(t, err)
	assert.Equal(t, "https://plomeria.ec", d.website())
}

func TestParseRating(t *testing.T) {
	t.Parallel()

	rating, reviews := parseRating("4.8\n(150)")
	require.NotNil(t, rating)
	assert.InDelta(t, 4.8, *rating, 0.001)
	assert.Equal(t, 150, reviews)

	rating, reviews = parseRating("")
	assert.Nil(t, rating)
	assert.Zero(t, reviews)

	_, reviews = parseRating("5,0(2,310)")
	assert.Equal(t, 2310, reviews)
}
