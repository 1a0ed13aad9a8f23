package anatomy

import (
	"errors"
	"testing"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visual-health-insight/internal/domain"
)

const graphic = `<svg xmlns="http://www.w3.org/2000/svg">
  <g id="heart"><title> HEART </title><path id="h1" d="M0 0" style="fill:#cccccc;stroke:#999999;opacity:0.9"/><g><circle id="h2" r="1"/></g><text id="h3">label</text></g>
  <g id="liver"><title>Liver</title><path id="l1" d="M1 1" style="fill:#ffffff"/></g>
  <g id="outer"><g id="kidneys"><title>Left kidney</title><rect id="k1" width="1" height="1"/></g><polygon id="k2" points="0,0 1,1"/></g>
  <path id="lung"><title>Lung</title></path>
</svg>`

var bodyMap = domain.BodyMap{
	{Name: "Cardiovascular", Color: "#e53935", LabelIDs: []string{"heart"}},
	{Name: "Hepatic", Color: "#fb8c00", LabelIDs: []string{"liver"}},
	{Name: "Renal", LabelIDs: []string{"kidney"}},
	{Name: "Respiratory", Color: "#43a047", LabelIDs: []string{"lung"}},
}

func parse(t *testing.T, markup string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(markup))
	return doc
}

func byID(t *testing.T, doc *etree.Document, id string) *etree.Element {
	t.Helper()
	el := doc.FindElement("//*[@id='" + id + "']")
	require.NotNil(t, el, "element %s", id)
	return el
}

func TestHighlight_AffectedAndMonitored(t *testing.T) {
	sets := domain.SystemSets{
		Affected:  domain.NewSystemSet("Cardiovascular"),
		Monitored: domain.NewSystemSet("Hepatic"),
	}

	out, n, err := Highlight(graphic, sets, bodyMap)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	doc := parse(t, out)

	h1 := byID(t, doc, "h1")
	assert.Equal(t, "#e53935", h1.SelectAttrValue("fill", ""))
	assert.Equal(t, "1", h1.SelectAttrValue("fill-opacity", ""))
	assert.Equal(t, StrokeColor, h1.SelectAttrValue("stroke", ""))
	assert.Equal(t, StrokeWidth, h1.SelectAttrValue("stroke-width", ""))
	assert.Equal(t, "opacity:0.9", h1.SelectAttrValue("style", ""))

	h2 := byID(t, doc, "h2")
	assert.Equal(t, "#e53935", h2.SelectAttrValue("fill", ""))

	assert.Nil(t, byID(t, doc, "h3").SelectAttr("fill"), "text is not a shape")

	l1 := byID(t, doc, "l1")
	assert.Equal(t, "#fb8c00", l1.SelectAttrValue("fill", ""))
	assert.Equal(t, "0.4", l1.SelectAttrValue("fill-opacity", ""))
	assert.Nil(t, l1.SelectAttr("style"), "empty style is removed")

	assert.Nil(t, byID(t, doc, "k1").SelectAttr("fill"))
}

func TestHighlight_DefaultColorAndScope(t *testing.T) {
	sets := domain.SystemSets{
		Affected:  domain.NewSystemSet("Renal"),
		Monitored: domain.NewSystemSet(),
	}

	out, n, err := Highlight(graphic, sets, bodyMap)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	doc := parse(t, out)
	assert.Equal(t, domain.DefaultSystemColor, byID(t, doc, "k1").SelectAttrValue("fill", ""))
	assert.Nil(t, byID(t, doc, "k2").SelectAttr("fill"), "sibling of the labelled group stays untouched")
}

func TestHighlight_LabelledShapeRecolorsItself(t *testing.T) {
	sets := domain.SystemSets{
		Affected:  domain.NewSystemSet(),
		Monitored: domain.NewSystemSet("Respiratory"),
	}

	out, n, err := Highlight(graphic, sets, bodyMap)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "#43a047", byID(t, parse(t, out), "lung").SelectAttrValue("fill", ""))
}

func TestHighlight_NoMatchPassesThrough(t *testing.T) {
	sets := domain.SystemSets{
		Affected:  domain.NewSystemSet("Unmapped"),
		Monitored: domain.NewSystemSet(),
	}

	out, n, err := Highlight(graphic, sets, bodyMap)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, graphic, out)
}

func TestHighlight_MalformedMarkup(t *testing.T) {
	for name, markup := range map[string]string{
		"Broken tag":       "<svg><<</svg>",
		"No root":          "just some text",
		"Two roots":        `<svg><g><title>heart</title><path/></g></svg><svg/>`,
		"Text after root":  `<svg><g><title>heart</title><path/></g></svg>trailing`,
		"Text before root": `leading<svg><g><title>heart</title><path/></g></svg>`,
	} {
		t.Run(name, func(t *testing.T) {
			sets := domain.SystemSets{Affected: domain.NewSystemSet("Cardiovascular")}
			out, n, err := Highlight(markup, sets, bodyMap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedGraphic))
			assert.Equal(t, markup, out)
			assert.Zero(t, n)
		})
	}
}

func TestStripPaint(t *testing.T) {
	tests := []struct {
		style    string
		expected string
	}{
		{"fill:#fff;stroke:#000", ""},
		{"fill: #fff; opacity: 0.5", "opacity: 0.5"},
		{"FILL-OPACITY:0.2;display:inline;stroke-width:2;", "display:inline"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripPaint(tt.style))
		})
	}
}

func TestAnnotator_LogsMalformedGraphic(t *testing.T) {
	logger, hook := test.NewNullLogger()
	annotator := NewAnnotator(logger)

	out, _, err := annotator.Annotate("P001", "<svg><<", domain.SystemSets{}, bodyMap)
	require.Error(t, err)
	assert.Equal(t, "<svg><<", out)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "P001", hook.LastEntry().Data["patient_id"])
}
