// Package email holds the credentials of the notification mailbox.
//
// The credentials are only stored; no mail is sent by this module.
package email

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/trackinglog/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// redactedPassword is the placeholder used when serializing passwords.
const redactedPassword = "***hidden***"

// DefaultFolder is the directory name used for stored emails under the task root.
const DefaultFolder = "emails"

// Options defines the email credential.
type Options struct {
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"-" mapstructure:"password"` // Excluded from JSON serialization
	RootFolder string `json:"root-folder" mapstructure:"root-folder"`
}

// optionsForJSON is used for JSON marshaling with password redacted.
type optionsForJSON struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RootFolder string `json:"root-folder"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{}
}

// Setup updates the credential. Nil username or password keeps the current value.
func (o *Options) Setup(rootFolder string, username, password *string) {
	o.RootFolder = rootFolder
	if username != nil {
		o.Username = *username
	}
	if password != nil {
		o.Password = *password
	}
}

// MarshalJSON implements json.Marshaler with password redaction.
func (o *Options) MarshalJSON() ([]byte, error) {
	return json.Marshal(optionsForJSON{
		Username:   o.Username,
		Password:   o.redacted(),
		RootFolder: o.RootFolder,
	})
}

// String returns a string representation with password redacted.
func (o *Options) String() string {
	return fmt.Sprintf("EmailCredential(username=%s, password=%s)", o.Username, o.redacted())
}

func (o *Options) redacted() string {
	if o.Password == "" {
		return ""
	}
	return redactedPassword
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	return nil
}

// AddFlags adds flags for email options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Username, p+"email.username", o.Username, "Email username.")
	fs.StringVar(&o.RootFolder, p+"email.root-folder", o.RootFolder, "Directory stored emails are kept in (default <root>/emails).")
	// The password is read from configuration files and environment only.
}
