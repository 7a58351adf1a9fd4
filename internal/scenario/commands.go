// internal/scenario/commands.go
package scenario

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/client"
	"github.com/xkilldash9x/compass-pilot/internal/registry"
)

// Invocation carries the arguments a catalogue command can consume. Each
// command reads only the fields its contract documents and ignores the
// rest, so callers populate what they need and leave the remainder zero.
type Invocation struct {
	Connection Connection
	Collection string
	Internal   bool
	Topic      string
	Query      string
	Timeout    time.Duration
	Interval   time.Duration
}

// Command names the catalogue registers.
const (
	CmdFillOutForm         = "fillOutForm"
	CmdClickConnect        = "clickConnect"
	CmdWaitForSchemaWindow = "waitForSchemaWindow"
	CmdWaitForHelpDialog   = "waitForHelpDialog"
	CmdFilterHelpTopics    = "filterHelpTopics"
	CmdStartUsingCompass   = "startUsingCompass"
	CmdGotoSchemaWindow    = "gotoSchemaWindow"
	CmdSelectCollection    = "selectCollection"
	CmdViewSampleDocuments = "viewSampleDocuments"
	CmdRefineSample        = "refineSample"
	CmdResetSample         = "resetSample"
	CmdSampleCollection    = "sampleCollection"
)

// AddCommands registers the whole catalogue on reg. Re-registration
// overwrites name by name, so suites that share a registry across test
// files may each call this once without coordinating.
func (l *Library) AddCommands(reg *registry.Registry[Invocation]) {
	reg.Register(CmdFillOutForm, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.FillOutForm(ctx, c, inv.Connection)
	})
	reg.Register(CmdClickConnect, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.ClickConnect(ctx, c)
	})
	reg.Register(CmdWaitForSchemaWindow, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.WaitForSchemaWindow(ctx, c, inv.Timeout, inv.Interval)
	})
	reg.Register(CmdWaitForHelpDialog, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.WaitForHelpDialog(ctx, c, inv.Timeout, inv.Interval)
	})
	reg.Register(CmdFilterHelpTopics, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.FilterHelpTopics(ctx, c, inv.Topic)
	})
	reg.Register(CmdStartUsingCompass, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.StartUsingCompass(ctx, c)
	})
	reg.Register(CmdGotoSchemaWindow, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.GotoSchemaWindow(ctx, c, inv.Connection, inv.Timeout)
	})
	reg.Register(CmdSelectCollection, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.SelectCollection(ctx, c, inv.Collection)
	})
	reg.Register(CmdViewSampleDocuments, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.ViewSampleDocuments(ctx, c)
	})
	reg.Register(CmdRefineSample, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.RefineSample(ctx, c, inv.Query)
	})
	reg.Register(CmdResetSample, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.ResetSample(ctx, c)
	})
	reg.Register(CmdSampleCollection, func(ctx context.Context, c client.Client, inv Invocation) error {
		return l.SampleCollection(ctx, c, inv.Collection, inv.Internal, inv.Timeout)
	})
}

// AddCommands builds a Library around logger and registers the catalogue on
// reg. This is the entry point test suites call from setup.
func AddCommands(reg *registry.Registry[Invocation], logger *zap.Logger) {
	NewLibrary(logger).AddCommands(reg)
}
