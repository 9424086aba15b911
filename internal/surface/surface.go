// Package surface defines the interactive surface a voice command runs against.
// Backends live in subpackages: dom (parsed HTML) and browser (live Chrome page).
package surface

import (
	"context"
	"errors"
	"strings"
)

// InteractiveSelector matches every element kind a command may target.
const InteractiveSelector = `button, input, textarea, select, a, [role="button"], [tabindex], [data-voice], [contenteditable], .clickable, .interactive`

// Voice metadata attributes.
const (
	AttrVoice        = "data-voice"
	AttrVoiceIntents = "data-voice-intents"
	AttrVoiceAction  = "data-voice-action"
)

// ErrDetached is returned by element operations after the element left the surface.
var ErrDetached = errors.New("element detached")

// Rect is a bounding box in viewport coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Visible reports whether r has non-zero size and lies fully inside viewport.
func (r Rect) Visible(viewport Rect) bool {
	return r.Width > 0 && r.Height > 0 &&
		r.Y >= 0 && r.X >= 0 &&
		r.Bottom() <= viewport.Height && r.Right() <= viewport.Width
}

// Description is a read-only snapshot of an element.
type Description struct {
	Tag             string
	Attrs           map[string]string
	Text            string
	Value           string
	ContentEditable bool
	Box             Rect
	// SameTagSiblings counts element siblings sharing Tag, the element included.
	SameTagSiblings int
	// TypeIndex is the 1-based position among those siblings.
	TypeIndex int
}

func (d Description) Attr(name string) string { return d.Attrs[name] }

// Classes splits the class attribute.
func (d Description) Classes() []string { return strings.Fields(d.Attrs["class"]) }

func (d Description) HasClass(name string) bool {
	for _, c := range d.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

// InlineStyle returns one declaration of the style attribute, or "".
func (d Description) InlineStyle(property string) string {
	property = strings.ToLower(property)
	for _, decl := range strings.Split(d.Attrs["style"], ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.ToLower(strings.TrimSpace(k)) == property {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Editable reports whether the element accepts typed text.
func (d Description) Editable() bool {
	return d.Tag == "input" || d.Tag == "textarea" || d.ContentEditable
}

// Surface is a queryable set of elements. Query returns a nil Element and a nil
// error when nothing matches; errors are reserved for invalid selectors and
// transport failures.
type Surface interface {
	Viewport(ctx context.Context) (Rect, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	Query(ctx context.Context, selector string) (Element, error)
}

// Element is a live handle to one surface element.
type Element interface {
	Describe(ctx context.Context) (Description, error)
	// Parent returns nil at the document body.
	Parent(ctx context.Context) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	Click(ctx context.Context) error
	Focus(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	// SetValue assigns a form value and emits input and change.
	SetValue(ctx context.Context, value string) error
	SetText(ctx context.Context, text string) error
	// SelectOption sets a select control's value and emits change.
	SelectOption(ctx context.Context, value string) error
	AddClass(ctx context.Context, class string) error
	RemoveClass(ctx context.Context, class string) error
	SetStyle(ctx context.Context, property, value string) error
}

// First returns the first element matching selector under el, or nil.
func First(ctx context.Context, el Element, selector string) (Element, error) {
	els, err := el.QueryAll(ctx, selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}
