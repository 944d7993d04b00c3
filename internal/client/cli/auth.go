package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/session"
	"github.com/survivalcodex/codex/internal/common"
)

// credentials takes the email from args or a prompt, and the password from
// the terminal when a backend will check it.
func (a *App) credentials(args []string) (string, []byte, error) {
	email := ""
	if len(args) > 0 {
		email = args[0]
	} else {
		var err error
		if email, err = getSimpleText(a.reader, "Enter email", a.out); err != nil {
			return "", nil, err
		}
	}
	if email == "" {
		return "", nil, errUsage
	}
	if !a.gw.Ready() {
		return email, nil, nil
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return email, password, nil
}

func (a *App) register(ctx context.Context, args []string) error {
	email, password, err := a.credentials(args)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	name := ""
	if len(args) > 1 {
		name = strings.Join(args[1:], " ")
	}
	u, err := a.session.SignUp(ctx, email, string(password), name)
	return a.signedIn(ctx, "Welcome, %s!\n", email, u, err)
}

func (a *App) login(ctx context.Context, args []string) error {
	email, password, err := a.credentials(args)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.session.SignIn(ctx, email, string(password))
	if err == nil || errors.Is(err, session.ErrProfileUnresolved) {
		a.chatID = ""
	}
	return a.signedIn(ctx, "Logged in as %s\n", email, u, err)
}

func (a *App) oauth(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	u, err := a.session.SignInWithOAuth(ctx, args[0], args[1])
	return a.signedIn(ctx, "Logged in as %s\n", args[0]+" account", u, err)
}

// signedIn greets the user after a sign-in. A session whose profile could
// not be fetched yet still counts as signed in.
func (a *App) signedIn(ctx context.Context, greeting, fallback string, u *models.User, err error) error {
	switch {
	case errors.Is(err, session.ErrProfileUnresolved):
		a.logger.Warn(ctx, "signed in without a profile", "error", err)
		fmt.Fprintf(a.out, greeting, fallback)
		fmt.Fprintln(a.out, "Your profile will load once the server is reachable.")
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintf(a.out, greeting, u.Email)
	a.warmup(ctx)
	return nil
}

func (a *App) logout(ctx context.Context, _ []string) error {
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	a.chatID = ""
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

func (a *App) whoami(_ context.Context, _ []string) error {
	u := a.session.Current()
	if u == nil {
		return fmt.Errorf("profile not loaded yet")
	}
	fmt.Fprintf(a.out, "Email:    %s\n", u.Email)
	if u.Name != "" {
		fmt.Fprintf(a.out, "Name:     %s\n", u.Name)
	}
	fmt.Fprintf(a.out, "Language: %s\n", u.Language)
	tier := u.EffectiveTier(time.Now())
	if tier == models.TierPremium && u.SubscriptionExpiry != nil {
		fmt.Fprintf(a.out, "Plan:     %s (until %s)\n", tier, u.SubscriptionExpiry.Local().Format(time.DateOnly))
	} else {
		fmt.Fprintf(a.out, "Plan:     %s\n", tier)
	}
	if u.AvatarURL != nil {
		fmt.Fprintf(a.out, "Avatar:   %s\n", *u.AvatarURL)
	}
	if u.APIKey != nil && *u.APIKey != "" {
		fmt.Fprintln(a.out, "API key:  set")
	}
	return nil
}

func (a *App) set(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	value := strings.Join(args[1:], " ")
	var patch models.ProfilePatch
	switch args[0] {
	case "name":
		patch.Name = &value
	case "language":
		patch.Language = &value
	case "apikey":
		patch.APIKey = &value
	default:
		return errUsage
	}
	if _, err := a.session.UpdateProfile(ctx, patch); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Profile updated.")
	return nil
}

func (a *App) avatar(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	u, err := a.session.SetAvatar(ctx, http.DetectContentType(data), data)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Avatar set: %s\n", *u.AvatarURL)
	return nil
}

// importLocal copies what was saved while signed out into the account.
func (a *App) importLocal(ctx context.Context, _ []string) error {
	b, err := a.library.Bookmarks.ImportLocal(ctx)
	if err != nil {
		return err
	}
	d, err := a.library.Downloads.ImportLocal(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Imported %d bookmarks and %d downloads.\n", b, d)
	return nil
}
