package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"voiceui/internal/domain"
	"voiceui/internal/surface"
)

type visitor struct {
	ctx context.Context
	el  surface.Element
	e   Executor
	log zerolog.Logger
	err error
}

var _ domain.Visitor = (*visitor)(nil)

func (v *visitor) fail(err error) bool {
	v.err = err
	return false
}

func (v *visitor) done(err error) bool {
	if err != nil {
		return v.fail(err)
	}
	return true
}

func (v *visitor) VisitClick(domain.Click) bool {
	return v.done(v.el.Click(v.ctx))
}

func (v *visitor) VisitType(a domain.Type) bool {
	d, err := v.el.Describe(v.ctx)
	if err != nil {
		return v.fail(err)
	}
	switch {
	case d.Tag == "input" || d.Tag == "textarea":
		return v.done(v.el.SetValue(v.ctx, a.Text))
	case d.ContentEditable:
		return v.done(v.el.SetText(v.ctx, a.Text))
	}
	return v.fail(fmt.Errorf("%s is not editable", d.Tag))
}

func (v *visitor) VisitSelect(a domain.Select) bool {
	sel, err := v.selectControl()
	if err != nil {
		return v.fail(err)
	}
	opts, err := v.options(sel)
	if err != nil {
		return v.fail(err)
	}
	value, ok := chooseOption(opts, a.Option)
	if !ok {
		return v.fail(fmt.Errorf("no option matches %q", a.Option))
	}
	return v.done(sel.SelectOption(v.ctx, value))
}

func (v *visitor) VisitFocus(domain.Focus) bool {
	target := v.el
	input, err := surface.First(v.ctx, v.el, "input, textarea, select")
	if err != nil {
		return v.fail(err)
	}
	if input != nil {
		target = input
	}
	return v.done(target.Focus(v.ctx))
}

func (v *visitor) VisitScroll(domain.Scroll) bool {
	return v.done(v.el.ScrollIntoView(v.ctx))
}

func (v *visitor) VisitWait(a domain.Wait) bool {
	v.e.sleep(v.ctx, a.Duration)
	return true
}

func (v *visitor) VisitCustom(a domain.Custom) bool {
	v.log.Info().Str("description", a.Description).Msg("custom action")
	return true
}

// VisitShow clicks a nested button while the element is hidden, otherwise
// clears the hidden markers directly.
func (v *visitor) VisitShow(domain.Show) bool {
	d, btn, err := v.describeWithButton()
	if err != nil {
		return v.fail(err)
	}
	if btn != nil && d.HasClass("hidden") {
		return v.done(btn.Click(v.ctx))
	}
	return v.done(v.reveal())
}

// VisitHide clicks a nested button while the element is shown, otherwise sets
// the hidden class.
func (v *visitor) VisitHide(domain.Hide) bool {
	d, btn, err := v.describeWithButton()
	if err != nil {
		return v.fail(err)
	}
	if btn != nil && !d.HasClass("hidden") {
		return v.done(btn.Click(v.ctx))
	}
	return v.done(v.el.AddClass(v.ctx, "hidden"))
}

func (v *visitor) VisitToggle(domain.Toggle) bool {
	d, btn, err := v.describeWithButton()
	if err != nil {
		return v.fail(err)
	}
	if btn != nil {
		return v.done(btn.Click(v.ctx))
	}
	if d.HasClass("hidden") || displayNone(d.Attr("style")) {
		return v.done(v.reveal())
	}
	return v.done(v.el.AddClass(v.ctx, "hidden"))
}

func (v *visitor) VisitRate(domain.Rate) bool {
	controls, err := v.el.QueryAll(v.ctx, "button")
	if err != nil {
		return v.fail(err)
	}
	pick := v.e.rate().Choose(v.ctx, controls)
	if pick == nil {
		return v.fail(fmt.Errorf("no rating controls"))
	}
	return v.done(pick.Click(v.ctx))
}

func (v *visitor) describeWithButton() (surface.Description, surface.Element, error) {
	d, err := v.el.Describe(v.ctx)
	if err != nil {
		return d, nil, err
	}
	btn, err := surface.First(v.ctx, v.el, "button")
	return d, btn, err
}

func (v *visitor) reveal() error {
	if err := v.el.RemoveClass(v.ctx, "hidden"); err != nil {
		return err
	}
	return v.el.SetStyle(v.ctx, "display", "")
}

// selectControl is the element itself when it is a select, else its first
// nested select.
func (v *visitor) selectControl() (surface.Element, error) {
	d, err := v.el.Describe(v.ctx)
	if err != nil {
		return nil, err
	}
	if d.Tag == "select" {
		return v.el, nil
	}
	sel, err := surface.First(v.ctx, v.el, "select")
	if err != nil {
		return nil, err
	}
	if sel == nil {
		return nil, fmt.Errorf("no selection control")
	}
	return sel, nil
}

type option struct {
	value string
	label string
}

func (v *visitor) options(sel surface.Element) ([]option, error) {
	els, err := sel.QueryAll(v.ctx, "option")
	if err != nil {
		return nil, err
	}
	out := make([]option, 0, len(els))
	for _, el := range els {
		d, err := el.Describe(v.ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, option{value: d.Value, label: strings.TrimSpace(d.Text)})
	}
	return out, nil
}

// chooseOption resolves the requested option. An empty request takes the first
// option with a non-empty value; otherwise an exact value match wins over a
// case-insensitive value or label match.
func chooseOption(opts []option, want string) (string, bool) {
	if want == "" {
		for _, o := range opts {
			if o.value != "" {
				return o.value, true
			}
		}
		return "", false
	}
	for _, o := range opts {
		if o.value == want {
			return o.value, true
		}
	}
	for _, o := range opts {
		if strings.EqualFold(o.value, want) || strings.EqualFold(o.label, want) {
			return o.value, true
		}
	}
	return "", false
}
