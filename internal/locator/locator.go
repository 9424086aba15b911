// Package locator discovers the visible interactive elements of a surface and
// derives a re-resolvable selector for each.
package locator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"voiceui/internal/domain"
	"voiceui/internal/surface"
)

// MaxText bounds SurfaceElement.Text.
const MaxText = 100

// maxSegments bounds structural paths.
const maxSegments = 3

var (
	safeClass = regexp.MustCompile(`^[a-zA-Z_-][a-zA-Z0-9_-]*$`)
	safeIdent = regexp.MustCompile(`^-?[a-zA-Z_][a-zA-Z0-9_-]*$`)
)

// Discover returns the inventory of interactive elements fully inside the
// viewport, in document order. Elements that vanish mid-scan are skipped.
func Discover(ctx context.Context, s surface.Surface) ([]domain.SurfaceElement, error) {
	vp, err := s.Viewport(ctx)
	if err != nil {
		return nil, fmt.Errorf("viewport: %w", err)
	}
	els, err := s.QueryAll(ctx, surface.InteractiveSelector)
	if err != nil {
		return nil, fmt.Errorf("query interactive elements: %w", err)
	}
	out := make([]domain.SurfaceElement, 0, len(els))
	for _, el := range els {
		d, err := el.Describe(ctx)
		if err != nil {
			continue
		}
		if !d.Box.Visible(vp) {
			continue
		}
		path, err := derive(ctx, el, d)
		if err != nil {
			continue
		}
		out = append(out, snapshot(d, path))
	}
	return out, nil
}

// Derive computes the locator for one element.
func Derive(ctx context.Context, el surface.Element) (string, error) {
	d, err := el.Describe(ctx)
	if err != nil {
		return "", err
	}
	return derive(ctx, el, d)
}

func derive(ctx context.Context, el surface.Element, d surface.Description) (string, error) {
	if id := d.Attr("id"); id != "" {
		return idSelector(id), nil
	}
	if v := d.Attr(surface.AttrVoice); v != "" {
		return AttrSelector(surface.AttrVoice, v), nil
	}

	var segs []string
	cur, desc := el, d
	for cur != nil {
		if desc.Tag == "body" || desc.Tag == "html" {
			break
		}
		seg := desc.Tag
		if id := desc.Attr("id"); id != "" {
			segs = append(segs, seg+idSelector(id))
			break
		}
		for _, c := range desc.Classes() {
			if safeClass.MatchString(c) {
				seg += "." + c
				break
			}
		}
		if desc.SameTagSiblings > 1 {
			seg += fmt.Sprintf(":nth-of-type(%d)", desc.TypeIndex)
		}
		segs = append(segs, seg)
		if len(segs) >= maxSegments {
			break
		}
		parent, err := cur.Parent(ctx)
		if err != nil {
			return "", err
		}
		if parent == nil {
			break
		}
		pd, err := parent.Describe(ctx)
		if err != nil {
			return "", err
		}
		cur, desc = parent, pd
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, " "), nil
}

// idSelector addresses an id as #id when it is a plain CSS identifier and as an
// attribute selector otherwise.
func idSelector(id string) string {
	if safeIdent.MatchString(id) {
		return "#" + id
	}
	return AttrSelector("id", id)
}

// AttrSelector builds [name="value"] with value quoted.
func AttrSelector(name, value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return "[" + name + `="` + r.Replace(value) + `"]`
}

func snapshot(d surface.Description, path string) domain.SurfaceElement {
	return domain.SurfaceElement{
		Tag:          d.Tag,
		ID:           d.Attr("id"),
		ClassName:    d.Attr("class"),
		Role:         d.Attr("role"),
		AriaLabel:    d.Attr("aria-label"),
		Text:         truncate(strings.TrimSpace(d.Text), MaxText),
		Type:         inputType(d),
		Placeholder:  d.Attr("placeholder"),
		Value:        d.Value,
		Href:         d.Attr("href"),
		Voice:        d.Attr(surface.AttrVoice),
		VoiceIntents: d.Attr(surface.AttrVoiceIntents),
		VoiceAction:  d.Attr(surface.AttrVoiceAction),
		Locator:      path,
	}
}

func inputType(d surface.Description) string {
	if t := d.Attr("type"); t != "" {
		return t
	}
	switch d.Tag {
	case "input":
		return "text"
	case "button":
		return "submit"
	case "textarea":
		return "textarea"
	case "select":
		return "select-one"
	}
	return ""
}

// truncate cuts s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
