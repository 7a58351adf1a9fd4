// internal/scenario/model.go
package scenario

// AuthKind enumerates the authentication mechanisms the connect form can
// reveal. AuthNone is the "feature disabled" sentinel: selecting it is
// distinct from leaving the field absent, but both produce zero form
// operations.
type AuthKind string

const (
	AuthNone     AuthKind = "NONE"
	AuthMongoDB  AuthKind = "MONGODB"
	AuthKerberos AuthKind = "KERBEROS"
	AuthLDAP     AuthKind = "LDAP"
	AuthX509     AuthKind = "X509"
)

// SSLKind enumerates the TLS modes of the connect form. SSLNone is the
// disabled sentinel, same contract as AuthNone.
type SSLKind string

const (
	SSLNone        SSLKind = "NONE"
	SSLUnvalidated SSLKind = "UNVALIDATED"
	SSLServer      SSLKind = "SERVER"
	SSLAll         SSLKind = "ALL"
)

// Connection is the input model for the connect form. A zero-valued field
// means "absent" and the form filler skips it entirely; it never writes an
// empty string into an input. Defaults for hostname and port are applied
// only by GotoSchemaWindow, never by FillOutForm itself.
type Connection struct {
	Hostname string
	Port     int
	Name     string

	Authentication AuthKind
	Username       string
	Password       string
	AuthSource     string

	KerberosPrincipal   string
	KerberosPassword    string
	KerberosServiceName string

	LDAPUsername string
	LDAPPassword string

	X509Username string

	SSL                   SSLKind
	SSLCA                 string
	SSLCertificate        string
	SSLPrivateKey         string
	SSLPrivateKeyPassword string
}

// Connect-scenario defaults for a partial model.
const (
	DefaultHostname = "localhost"
	DefaultPort     = 27017
)

// withDefaults returns a copy with hostname and port defaulted when absent.
func (c Connection) withDefaults() Connection {
	if c.Hostname == "" {
		c.Hostname = DefaultHostname
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	return c
}

// formField binds one form input to the model value that fills it.
type formField struct {
	selector string
	value    func(Connection) string
}

// authFields maps each authentication kind to the sub-fields the form
// reveals for it. The lists are fixed; which entries actually get written
// depends on presence in the model alone.
var authFields = map[AuthKind][]formField{
	AuthMongoDB: {
		{selUsername, func(c Connection) string { return c.Username }},
		{selPassword, func(c Connection) string { return c.Password }},
		{selAuthSource, func(c Connection) string { return c.AuthSource }},
	},
	AuthKerberos: {
		{selKerberosPrincipal, func(c Connection) string { return c.KerberosPrincipal }},
		{selKerberosPassword, func(c Connection) string { return c.KerberosPassword }},
		{selKerberosServiceName, func(c Connection) string { return c.KerberosServiceName }},
	},
	AuthLDAP: {
		{selLDAPUsername, func(c Connection) string { return c.LDAPUsername }},
		{selLDAPPassword, func(c Connection) string { return c.LDAPPassword }},
	},
	AuthX509: {
		{selX509Username, func(c Connection) string { return c.X509Username }},
	},
}

// sslFields is the fixed four-field set revealed by every non-NONE SSL mode.
var sslFields = []formField{
	{selSSLCA, func(c Connection) string { return c.SSLCA }},
	{selSSLCertificate, func(c Connection) string { return c.SSLCertificate }},
	{selSSLPrivateKey, func(c Connection) string { return c.SSLPrivateKey }},
	{selSSLPrivateKeyPassword, func(c Connection) string { return c.SSLPrivateKeyPassword }},
}
