package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, appleScriptSafe(message), appleScriptSafe(title))
	return exec.Command("osascript", "-e", script).Run()
}

func appleScriptSafe(s string) string {
	return strings.NewReplacer(`"`, `'`, `\`, `/`).Replace(s)
}

// Notifier prints job outcomes and optionally raises a desktop notification
type Notifier struct {
	sender  NotificationSender
	desktop bool
}

// NewNotifier creates a Notifier; desktop enables platform notifications
// where a sender exists.
func NewNotifier(desktop bool) *Notifier {
	var sender NotificationSender
	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	}
	return &Notifier{sender: sender, desktop: desktop}
}

// NewNotifierWithSender creates a Notifier with an explicit sender
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender, desktop: sender != nil}
}

func (n *Notifier) send(title, message string) {
	if n.desktop && n.sender != nil {
		// notifications are best effort
		_ = n.sender.Send(title, message)
	}
}

// SendError reports a failed job
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(output, "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess reports a finished job
func (n *Notifier) SendSuccess(title, message string) {
	if !IsQuietMode() {
		fmt.Fprintf(output, "\n%s: %s\n", Green(title), Green(message))
	}
	n.send(title, message)
}
