package project

import (
	"context"

	"github.com/dshills/buildsync/internal/config"
)

// ConfigurationStatusCommand is the command bound to the choices of the
// configuration prompt. Its arguments are a DocumentRef and an update
// policy.
const ConfigurationStatusCommand = "buildsync.projectConfiguration.status"

// ConfigurationPrompt is the message of the configuration prompt.
const ConfigurationPrompt = "A build file was modified. Do you want to synchronize the project configuration?"

// Prompt choice labels.
const (
	ChoiceNever  = "Never"
	ChoiceNow    = "Now"
	ChoiceAlways = "Always"
)

// Severity is the severity of a notification.
type Severity int

// Notification severities, numbered as LSP MessageType.
const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
	SeverityLog
)

// DocumentRef identifies a document by URI.
type DocumentRef struct {
	URI string `json:"uri"`
}

// Command is a choice offered to the user.
type Command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// ActionableNotification is a message with choices.
type ActionableNotification struct {
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Data     any       `json:"data,omitempty"`
	Commands []Command `json:"commands"`
}

// Notifier delivers notifications to the connected client.
type Notifier interface {
	SendActionableNotification(ctx context.Context, n ActionableNotification) error
}

// Preferences reads and persists the update policy. Implementations must
// return the current value on every call.
type Preferences interface {
	UpdatePolicy() config.UpdatePolicy
	SetUpdatePolicy(p config.UpdatePolicy) error
}

// configurationPrompt builds the prompt for a modified build file.
func configurationPrompt(uri string) ActionableNotification {
	ref := DocumentRef{URI: uri}
	return ActionableNotification{
		Severity: SeverityInfo,
		Message:  ConfigurationPrompt,
		Commands: []Command{
			{Title: ChoiceNever, Command: ConfigurationStatusCommand, Arguments: []any{ref, config.PolicyDisabled}},
			{Title: ChoiceNow, Command: ConfigurationStatusCommand, Arguments: []any{ref, config.PolicyInteractive}},
			{Title: ChoiceAlways, Command: ConfigurationStatusCommand, Arguments: []any{ref, config.PolicyAutomatic}},
		},
	}
}
