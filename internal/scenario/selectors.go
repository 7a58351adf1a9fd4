// internal/scenario/selectors.go
package scenario

import "fmt"

// The selectors below are the only GUI markup specifics this library owns.
// Everything outside this package treats them as opaque strings.
const (
	selConnectForm   = "form[name=connect-form]"
	selHostname      = "input[name=hostname]"
	selPort          = "input[name=port]"
	selName          = "input[name=name]"
	selAuthDropdown  = "select[name=authentication]"
	selSSLDropdown   = "select[name=ssl]"
	selConnectButton = "button[name=connect]"

	selUsername   = "input[name=username]"
	selPassword   = "input[name=password]"
	selAuthSource = "input[name=authentication-database]"

	selKerberosPrincipal   = "input[name=kerberos-principal]"
	selKerberosPassword    = "input[name=kerberos-password]"
	selKerberosServiceName = "input[name=kerberos-service-name]"

	selLDAPUsername = "input[name=ldap-username]"
	selLDAPPassword = "input[name=ldap-password]"

	selX509Username = "input[name=x509-username]"

	selSSLCA                 = "input[name=ssl-ca]"
	selSSLCertificate        = "input[name=ssl-certificate]"
	selSSLPrivateKey         = "input[name=ssl-private-key]"
	selSSLPrivateKeyPassword = "input[name=ssl-private-key-password]"

	selStatusBar       = "div[data-test-id=status-bar]"
	selDocumentList    = "div[data-test-id=document-list]"
	selSampleDocuments = "button[data-test-id=view-sample-documents]"
	selSampleFilter    = "input[data-test-id=refine-sample]"
	selApplySample     = "button[data-test-id=apply-sample-filter]"
	selResetSample     = "button[data-test-id=reset-sample-filter]"

	selFeatureTourModal  = "div[data-test-id=feature-tour-modal]"
	selCloseFeatureTour  = "button[data-test-id=close-tour-button]"
	selPrivacyModal      = "div[data-test-id=privacy-settings-modal]"
	selClosePrivacy      = "button[data-test-id=close-privacy-settings-button]"
	selOnboardingOverlay = "div[data-test-id=onboarding-overlay]"

	selHelpFilter  = "input[data-test-id=help-filter]"
	selHelpEntries = "div[data-test-id=help-entries]"
)

// internalSuffix is appended to a collection's display title in the sidebar
// when the collection is flagged internal.
const internalSuffix = " (internal collection)"

// sidebarEntry returns the selector matching a sidebar item whose title
// attribute equals title exactly. Quoting matters: collection names contain
// dots, which would otherwise terminate the attribute match.
func sidebarEntry(title string) string {
	return fmt.Sprintf("a[title=%q]", title)
}
