// internal/client/dom.go
package client

import (
	"context"
	encodingjson "encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/wait"
)

// Per-operation budgets. SetValue gets the largest one because it waits for
// visibility, clears, and types in a single pass.
const (
	clickTimeout    = 30 * time.Second
	setValueTimeout = 45 * time.Second
	selectTimeout   = 15 * time.Second
	getTextTimeout  = 10 * time.Second
	probeTimeout    = 10 * time.Second
)

// Click scrolls the element into view, waits for it to render, and clicks
// it.
func (c *CDP) Click(ctx context.Context, selector string) error {
	c.logger.Debug("Clicking element.", zap.String("selector", selector))
	err := c.run(ctx, clickTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

// SetValue clears the field and types value into it. Clearing goes through
// the DOM so the application sees the same input and change events a user
// would produce.
func (c *CDP) SetValue(ctx context.Context, selector, value string) error {
	c.logger.Debug("Setting field value.", zap.String("selector", selector))
	var cleared bool
	err := c.run(ctx, setValueTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(clearScript(selector), &cleared, evalOpts),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("setting value on %q: %w", selector, err)
	}
	if !cleared {
		return fmt.Errorf("%w: %q is not an editable field", ErrElementNotFound, selector)
	}
	return nil
}

// SelectByValue picks the option with the given value attribute from a
// select element and fires the change events the application listens for.
func (c *CDP) SelectByValue(ctx context.Context, selector, value string) error {
	c.logger.Debug("Selecting option.",
		zap.String("selector", selector),
		zap.String("value", value))
	var ok bool
	err := c.run(ctx, selectTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(selectScript(selector, value), &ok, evalOpts),
	)
	if err != nil {
		return fmt.Errorf("selecting %q on %q: %w", value, selector, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q has no option %q", ErrElementNotFound, selector, value)
	}
	return nil
}

// GetText returns the rendered text of the element with surrounding
// whitespace trimmed. A missing element is an error, not an empty string.
// The evaluate target stays encoding/json.RawMessage because chromedp
// decodes into it directly.
func (c *CDP) GetText(ctx context.Context, selector string) (string, error) {
	var raw encodingjson.RawMessage
	err := c.run(ctx, getTextTimeout,
		chromedp.Evaluate(textScript(selector), &raw, evalOpts),
	)
	if err != nil {
		return "", fmt.Errorf("reading text of %q: %w", selector, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("decoding text of %q: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

// WaitForVisible polls the element's rendered visibility until it matches
// the wanted state. With reverse set it waits for the element to stop being
// visible; absence counts as not visible, so it also resolves when the
// element leaves the DOM entirely.
func (c *CDP) WaitForVisible(ctx context.Context, selector string, timeout time.Duration, reverse bool) error {
	if timeout <= 0 {
		timeout = c.opts.DefaultWaitTimeout
	}
	op := fmt.Sprintf("waitForVisible(%s)", selector)
	if reverse {
		op = fmt.Sprintf("waitForVisible(%s, reverse)", selector)
	}
	script := visibleScript(selector)
	return wait.Until(ctx, op, func(ctx context.Context) (bool, error) {
		var visible bool
		if err := c.run(ctx, probeTimeout, chromedp.Evaluate(script, &visible, evalOpts)); err != nil {
			return false, err
		}
		return visible != reverse, nil
	}, timeout, c.opts.PollInterval)
}

// WaitForExist polls until the element is present in the DOM, rendered or
// not.
func (c *CDP) WaitForExist(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.opts.DefaultWaitTimeout
	}
	script := existsScript(selector)
	return wait.Until(ctx, fmt.Sprintf("waitForExist(%s)", selector), func(ctx context.Context) (bool, error) {
		var exists bool
		if err := c.run(ctx, probeTimeout, chromedp.Evaluate(script, &exists, evalOpts)); err != nil {
			return false, err
		}
		return exists, nil
	}, timeout, c.opts.PollInterval)
}

// evalOpts makes evaluations return plain JSON values and settle promises
// before resolving.
func evalOpts(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
}

// jsonEncode renders s as a JS string literal so selectors survive
// embedding in script source.
func jsonEncode(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func clearScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el || el.disabled || el.readOnly) { return false; }
	el.value = '';
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, jsonEncode(selector))
}

func selectScript(selector, value string) string {
	quoted := jsonEncode(value)
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el || el.tagName !== 'SELECT') { return false; }
	el.value = %s;
	if (el.value !== %s) { return false; }
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, jsonEncode(selector), quoted, quoted)
}

func textScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) { return null; }
	return el.innerText;
})()`, jsonEncode(selector))
}

func visibleScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) { return false; }
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') { return false; }
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})()`, jsonEncode(selector))
}

func existsScript(selector string) string {
	return fmt.Sprintf(`document.querySelector(%s) !== null`, jsonEncode(selector))
}
