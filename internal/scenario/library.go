// internal/scenario/library.go

// Package scenario is the catalogue of pre-built Compass interactions:
// filling the connect form, dismissing onboarding, selecting and sampling
// collections, and driving the help window. Every command composes the wait
// engine, the step sequencer, and the window tracker against the client
// facade; none of them talk to the protocol directly.
package scenario

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/client"
	"github.com/xkilldash9x/compass-pilot/internal/sequence"
	"github.com/xkilldash9x/compass-pilot/internal/wait"
	"github.com/xkilldash9x/compass-pilot/internal/windows"
)

// Per-operation budgets. The busy indicator covers server round trips, so it
// gets a longer leash than plain form interactions; onboarding is slowest of
// all because it waits out the first instance launch.
const (
	formTimeout       = 10 * time.Second
	busyTimeout       = 15 * time.Second
	onboardingTimeout = 30 * time.Second
)

// Library holds the scripted interaction catalogue. Methods take the client
// explicitly so one Library can serve any number of application instances;
// it carries no per-connection state of its own.
type Library struct {
	logger *zap.Logger
}

// NewLibrary builds the catalogue around the given logger.
func NewLibrary(logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{logger: logger.Named("scenario")}
}

// click wraps a single click into a named step.
func click(c client.Client, name, selector string) sequence.Step {
	return sequence.Step{Name: name, Run: func(ctx context.Context) error {
		return c.Click(ctx, selector)
	}}
}

// visible waits until selector is visible.
func visible(c client.Client, name, selector string, timeout time.Duration) sequence.Step {
	return sequence.Step{Name: name, Run: func(ctx context.Context) error {
		return c.WaitForVisible(ctx, selector, timeout, false)
	}}
}

// notVisible waits until selector is gone from view.
func notVisible(c client.Client, name, selector string, timeout time.Duration) sequence.Step {
	return sequence.Step{Name: name, Run: func(ctx context.Context) error {
		return c.WaitForVisible(ctx, selector, timeout, true)
	}}
}

// setWhen writes value into selector, guarded on the value being present.
// An absent value contributes neither an operation nor a delay.
func setWhen(c client.Client, name, selector, value string) sequence.Step {
	return sequence.Step{
		Name:  name,
		Guard: func() bool { return value != "" },
		Run: func(ctx context.Context) error {
			return c.SetValue(ctx, selector, value)
		},
	}
}

// FillOutForm writes the present fields of model into the connect form.
// The two discriminators gate their dependent blocks: an authentication or
// ssl value that is absent or the NONE sentinel issues no operations at all
// for that block, while any other kind first selects the dropdown entry and
// then fills whichever of its sub-fields the model carries. Defaults are
// never applied here.
func (l *Library) FillOutForm(ctx context.Context, c client.Client, model Connection) error {
	seq := sequence.New(l.logger).Append(
		setWhen(c, "set hostname", selHostname, model.Hostname),
		sequence.Step{
			Name:  "set port",
			Guard: func() bool { return model.Port != 0 },
			Run: func(ctx context.Context) error {
				return c.SetValue(ctx, selPort, strconv.Itoa(model.Port))
			},
		},
		setWhen(c, "set connection name", selName, model.Name),
	)

	if kind := model.Authentication; kind != "" && kind != AuthNone {
		fields, known := authFields[kind]
		if !known {
			l.logger.Warn("Unrecognized authentication kind, no sub-fields will be filled.",
				zap.String("kind", string(kind)))
		}
		seq.Append(sequence.Step{
			Name: "select authentication kind",
			Run: func(ctx context.Context) error {
				return c.SelectByValue(ctx, selAuthDropdown, string(kind))
			},
		})
		for _, f := range fields {
			seq.Append(setWhen(c, "set "+f.selector, f.selector, f.value(model)))
		}
	}

	if kind := model.SSL; kind != "" && kind != SSLNone {
		seq.Append(sequence.Step{
			Name: "select ssl kind",
			Run: func(ctx context.Context) error {
				return c.SelectByValue(ctx, selSSLDropdown, string(kind))
			},
		})
		for _, f := range sslFields {
			seq.Append(setWhen(c, "set "+f.selector, f.selector, f.value(model)))
		}
	}

	return seq.Run(ctx)
}

// ClickConnect submits the connect form.
func (l *Library) ClickConnect(ctx context.Context, c client.Client) error {
	return c.Click(ctx, selConnectButton)
}

// WaitForSchemaWindow blocks until a new window occupies slot 0 and focus
// has moved to it. Connecting replaces the connect window, so slot 0 is
// where the schema view appears.
func (l *Library) WaitForSchemaWindow(ctx context.Context, c client.Client, timeout, interval time.Duration) error {
	_, err := windows.NewTracker(c, l.logger).WaitForWindow(ctx, 0, timeout, interval)
	return err
}

// WaitForHelpDialog blocks until the help window occupies slot 1, focus has
// moved to it, and its topic list is visible.
func (l *Library) WaitForHelpDialog(ctx context.Context, c client.Client, timeout, interval time.Duration) error {
	if _, err := windows.NewTracker(c, l.logger).WaitForWindow(ctx, 1, timeout, interval); err != nil {
		return err
	}
	return c.WaitForVisible(ctx, selHelpEntries, timeout, false)
}

// FilterHelpTopics narrows the help window's topic list to topic.
func (l *Library) FilterHelpTopics(ctx context.Context, c client.Client, topic string) error {
	return sequence.Run(ctx, l.logger,
		visible(c, "wait for help filter", selHelpFilter, formTimeout),
		sequence.Step{Name: "filter help topics", Run: func(ctx context.Context) error {
			return c.SetValue(ctx, selHelpFilter, topic)
		}},
	)
}

// StartUsingCompass dismisses the first-run onboarding. The sequence is
// fixed: the feature tour and the privacy settings dialog are closed in
// order, then the onboarding overlay is polled until its text content reads
// exactly empty, which is the application's ready signal.
func (l *Library) StartUsingCompass(ctx context.Context, c client.Client) error {
	return sequence.Run(ctx, l.logger,
		visible(c, "wait for feature tour", selFeatureTourModal, formTimeout),
		click(c, "close feature tour", selCloseFeatureTour),
		visible(c, "wait for privacy settings", selPrivacyModal, formTimeout),
		click(c, "close privacy settings", selClosePrivacy),
		sequence.Step{Name: "wait for onboarding overlay to drain", Run: func(ctx context.Context) error {
			return wait.Until(ctx, "onboarding overlay empty", func(ctx context.Context) (bool, error) {
				text, err := c.GetText(ctx, selOnboardingOverlay)
				if err != nil {
					return false, err
				}
				return text == "", nil
			}, onboardingTimeout, 0)
		}},
	)
}

// GotoSchemaWindow runs the whole connect flow: hostname and port defaults
// are applied to the partial model, the form is awaited and filled, connect
// is clicked, and the call returns once the schema window holds focus. The
// timeout budgets only the schema-window wait; earlier steps use the form
// budget.
func (l *Library) GotoSchemaWindow(ctx context.Context, c client.Client, conn Connection, timeout time.Duration) error {
	conn = conn.withDefaults()
	return sequence.Run(ctx, l.logger,
		visible(c, "wait for connect form", selConnectForm, formTimeout),
		sequence.Step{Name: "fill out connect form", Run: func(ctx context.Context) error {
			return l.FillOutForm(ctx, c, conn)
		}},
		click(c, "click connect", selConnectButton),
		sequence.Step{Name: "wait for schema window", Run: func(ctx context.Context) error {
			return l.WaitForSchemaWindow(ctx, c, timeout, 0)
		}},
	)
}

// SelectCollection opens the named collection from the sidebar. The busy
// indicator must clear first; the sidebar entry is matched on its exact
// title attribute, then the document list confirms the view switched.
func (l *Library) SelectCollection(ctx context.Context, c client.Client, name string) error {
	entry := sidebarEntry(name)
	return sequence.Run(ctx, l.logger,
		notVisible(c, "wait for busy indicator to clear", selStatusBar, busyTimeout),
		visible(c, "wait for sidebar entry", entry, formTimeout),
		click(c, "click sidebar entry", entry),
		visible(c, "wait for document list", selDocumentList, busyTimeout),
	)
}

// ViewSampleDocuments opens the sampled-documents view once the busy
// indicator has cleared.
func (l *Library) ViewSampleDocuments(ctx context.Context, c client.Client) error {
	return sequence.Run(ctx, l.logger,
		notVisible(c, "wait for busy indicator to clear", selStatusBar, busyTimeout),
		click(c, "open sample documents", selSampleDocuments),
	)
}

// RefineSample applies query to the sample view's filter.
func (l *Library) RefineSample(ctx context.Context, c client.Client, query string) error {
	return sequence.Run(ctx, l.logger,
		notVisible(c, "wait for busy indicator to clear", selStatusBar, busyTimeout),
		sequence.Step{Name: "set sample filter", Run: func(ctx context.Context) error {
			return c.SetValue(ctx, selSampleFilter, query)
		}},
		click(c, "apply sample filter", selApplySample),
	)
}

// ResetSample clears any applied sample filter.
func (l *Library) ResetSample(ctx context.Context, c client.Client) error {
	return sequence.Run(ctx, l.logger,
		notVisible(c, "wait for busy indicator to clear", selStatusBar, busyTimeout),
		click(c, "reset sample filter", selResetSample),
	)
}

// SampleCollection triggers a fresh sampling round trip for the named
// collection. Internal collections are listed under a suffixed display
// title, so the flag changes which sidebar entry is clicked. Completion is
// the full progress cycle: the busy indicator must be observed visible and
// then observed gone, not merely found absent.
func (l *Library) SampleCollection(ctx context.Context, c client.Client, name string, internal bool, timeout time.Duration) error {
	title := name
	if internal {
		title += internalSuffix
	}
	return sequence.Run(ctx, l.logger,
		click(c, "click sidebar entry", sidebarEntry(title)),
		visible(c, "wait for busy indicator", selStatusBar, timeout),
		notVisible(c, "wait for busy indicator to clear", selStatusBar, timeout),
	)
}
