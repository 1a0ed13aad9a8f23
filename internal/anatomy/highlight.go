// Package anatomy recolors the organ groups of an anatomy graphic so a patient's affected and
// monitored body systems stand out on the diagram.
package anatomy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/visual-health-insight/internal/domain"
)

// Stroke applied to every recolored shape.
const (
	StrokeColor = "#000000"
	StrokeWidth = "0.4"
)

// shapeTags are the elements that carry paint.
var shapeTags = map[string]bool{
	"path":     true,
	"circle":   true,
	"ellipse":  true,
	"polygon":  true,
	"polyline": true,
	"rect":     true,
}

// paintProperties are stripped from inline styles before paint attributes are set.
var paintProperties = map[string]bool{
	"fill":         true,
	"fill-opacity": true,
	"stroke":       true,
	"stroke-width": true,
}

// Highlight paints every affected system at full opacity and every monitored system at reduced
// opacity, using each system's color from bodyMap. Systems are painted in bodyMap order. It
// returns the annotated markup and the number of recolored shapes. When markup cannot be
// parsed the original markup is returned along with an error wrapping ErrMalformedGraphic.
// If nothing matched the original markup is returned unchanged.
func Highlight(markup string, sets domain.SystemSets, bodyMap domain.BodyMap) (string, int, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(markup); err != nil {
		return markup, 0, fmt.Errorf("%w: %v", domain.ErrMalformedGraphic, err)
	}
	if err := checkDocument(doc); err != nil {
		return markup, 0, fmt.Errorf("%w: %v", domain.ErrMalformedGraphic, err)
	}
	root := doc.Root()

	recolored := make(map[*etree.Element]bool)
	for _, sys := range bodyMap {
		opacity, ok := sets.Opacity(sys.Name)
		if !ok {
			continue
		}
		color := sys.Color
		if color == "" {
			color = domain.DefaultSystemColor
		}
		for _, id := range sys.LabelIDs {
			for _, group := range labeledElements(root, id) {
				for _, shape := range shapesWithin(group) {
					paint(shape, color, opacity)
					recolored[shape] = true
				}
			}
		}
	}

	if len(recolored) == 0 {
		return markup, 0, nil
	}

	out, err := doc.WriteToString()
	if err != nil {
		return markup, 0, fmt.Errorf("%w: %v", domain.ErrMalformedGraphic, err)
	}
	return out, len(recolored), nil
}

// checkDocument requires exactly one root element and no text outside it.
func checkDocument(doc *etree.Document) error {
	switch n := len(doc.ChildElements()); {
	case n == 0:
		return fmt.Errorf("no root element")
	case n > 1:
		return fmt.Errorf("%d top-level elements", n)
	}
	for _, tok := range doc.Child {
		if cd, ok := tok.(*etree.CharData); ok && !cd.IsWhitespace() {
			return fmt.Errorf("text outside the root element")
		}
	}
	return nil
}

// labeledElements finds elements with a direct <title> child whose text contains id,
// ignoring case and surrounding whitespace.
func labeledElements(root *etree.Element, id string) []*etree.Element {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil
	}

	var found []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if child.Tag == "title" && strings.Contains(strings.ToLower(strings.TrimSpace(child.Text())), id) {
				found = append(found, el)
				break
			}
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(root)
	return found
}

// shapesWithin returns el itself when it is a shape, followed by every shape below it.
func shapesWithin(el *etree.Element) []*etree.Element {
	var shapes []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		if shapeTags[e.Tag] {
			shapes = append(shapes, e)
		}
		for _, child := range e.ChildElements() {
			walk(child)
		}
	}
	walk(el)
	return shapes
}

func paint(el *etree.Element, color string, opacity float64) {
	if style := el.SelectAttr("style"); style != nil {
		if rest := stripPaint(style.Value); rest == "" {
			el.RemoveAttr("style")
		} else {
			style.Value = rest
		}
	}
	el.CreateAttr("fill", color)
	el.CreateAttr("fill-opacity", strconv.FormatFloat(opacity, 'f', -1, 64))
	el.CreateAttr("stroke", StrokeColor)
	el.CreateAttr("stroke-width", StrokeWidth)
}

// stripPaint removes fill and stroke declarations from an inline style.
func stripPaint(style string) string {
	var kept []string
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		prop, _, _ := strings.Cut(decl, ":")
		if paintProperties[strings.ToLower(strings.TrimSpace(prop))] {
			continue
		}
		kept = append(kept, decl)
	}
	return strings.Join(kept, ";")
}

// Annotator produces patient diagrams from base graphics, logging soft failures.
type Annotator struct {
	logger *logrus.Logger
}

// NewAnnotator creates an annotator.
func NewAnnotator(logger *logrus.Logger) *Annotator {
	return &Annotator{logger: logger}
}

// Annotate highlights sets on markup. A malformed graphic is logged and returned unchanged
// together with the error so callers can surface a warning.
func (a *Annotator) Annotate(patientID, markup string, sets domain.SystemSets, bodyMap domain.BodyMap) (string, int, error) {
	out, n, err := Highlight(markup, sets, bodyMap)
	if err != nil {
		a.logger.WithError(err).WithField("patient_id", patientID).Warn("Anatomy graphic could not be annotated")
		return out, 0, err
	}
	a.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"affected":   len(sets.Affected),
		"monitored":  len(sets.Monitored),
		"recolored":  n,
	}).Debug("Annotated anatomy graphic")
	return out, n, nil
}
