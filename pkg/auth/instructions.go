package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide explains how to create an access token on an instance
func ShowTokenGuide(w io.Writer, instance string) {
	if instance == "" {
		instance = "your.instance"
	}
	rule := strings.Repeat("=", 72)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "MASTODON ACCESS TOKEN")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Public profiles can be exported without a token. A token raises the")
	fmt.Fprintln(w, "rate limit and gives access to data visible to your own account.")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "1. Sign in at https://%s\n", instance)
	fmt.Fprintf(w, "2. Open https://%s/settings/applications\n", instance)
	fmt.Fprintln(w, "3. Create a new application with only the read scopes:")
	fmt.Fprintln(w, "     read:accounts  read:statuses  read:follows")
	fmt.Fprintln(w, "4. Open the application and copy \"Your access token\"")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token is stored in the system keychain when available, otherwise")
	fmt.Fprintln(w, "in an encrypted file. Never share it.")
	fmt.Fprintln(w, rule)
}
