// Command intelctl is an interactive terminal client for the account
// core, working directly against a file-backed store. It covers the same
// lifecycle as the HTTP API: register, login, recovery, and the admin
// operations, without needing a running server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/arturkam25/intelplatform/internal/account"
	"github.com/arturkam25/intelplatform/internal/filestore"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type app struct {
	accounts *account.Service
	reader   *bufio.Reader
	current  *account.Profile
}

func main() {
	var (
		path    = flag.String("file", getEnv("INTELCTL_FILE", "accounts.txt"), "Path to the account store file")
		admin   = flag.String("bootstrap-admin", getEnv("AUTH_BOOTSTRAP_ADMIN", "admin"), "Username that registers with the admin role")
		verbose = flag.Bool("verbose-errors", false, "Per-cause login failure messages with attempts remaining")
	)
	flag.Parse()

	store, err := filestore.Open(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open account store %s: %v\n", *path, err)
		os.Exit(1)
	}

	cfg := account.DefaultServiceConfig()
	cfg.BootstrapAdmin = *admin
	cfg.VerboseLoginErrors = *verbose

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := &app{
		accounts: account.NewService(store, cfg, nil, logger),
		reader:   bufio.NewReader(os.Stdin),
	}

	fmt.Printf("Account store: %s\n", *path)
	a.run()
}

func (a *app) run() {
	for {
		if a.current == nil {
			if done := a.anonymousMenu(); done {
				return
			}
			continue
		}
		if a.current.Role == account.RoleAdmin {
			a.adminMenu()
		} else {
			a.userMenu()
		}
	}
}

func (a *app) anonymousMenu() bool {
	fmt.Println()
	fmt.Println("1) Login")
	fmt.Println("2) Register")
	fmt.Println("3) Forgot password")
	fmt.Println("4) Forgot username")
	fmt.Println("5) Exit")

	switch a.readLine("Choose") {
	case "1":
		a.login()
	case "2":
		a.register()
	case "3":
		a.forgotPassword()
	case "4":
		a.forgotUsername()
	case "5":
		return true
	default:
		fmt.Println("Unknown choice")
	}
	return false
}

func (a *app) userMenu() {
	fmt.Println()
	fmt.Printf("Logged in as %s\n", a.current.Username)
	fmt.Println("1) Change password")
	fmt.Println("2) Change username")
	fmt.Println("3) New recovery code")
	fmt.Println("4) Delete my account")
	fmt.Println("5) Logout")

	switch a.readLine("Choose") {
	case "1":
		a.changePassword()
	case "2":
		a.rename()
	case "3":
		a.regenerateRecoveryCode()
	case "4":
		a.deleteSelf()
	case "5":
		a.current = nil
	default:
		fmt.Println("Unknown choice")
	}
}

func (a *app) adminMenu() {
	fmt.Println()
	fmt.Printf("Logged in as %s (admin)\n", a.current.Username)
	fmt.Println("1) Change password")
	fmt.Println("2) Change username")
	fmt.Println("3) New recovery code")
	fmt.Println("4) List accounts")
	fmt.Println("5) Unlock account")
	fmt.Println("6) Reset a password")
	fmt.Println("7) Delete an account")
	fmt.Println("8) Logout")

	switch a.readLine("Choose") {
	case "1":
		a.changePassword()
	case "2":
		a.rename()
	case "3":
		a.regenerateRecoveryCode()
	case "4":
		a.listAccounts()
	case "5":
		a.unlockAccount()
	case "6":
		a.adminResetPassword()
	case "7":
		a.adminDelete()
	case "8":
		a.current = nil
	default:
		fmt.Println("Unknown choice")
	}
}

func (a *app) login() {
	username := a.readLine("Username")
	password, ok := a.readPassword("Password")
	if !ok {
		return
	}

	profile, err := a.accounts.Login(context.Background(), username, password)
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	a.current = profile
	fmt.Printf("Welcome, %s.\n", profile.Username)
}

func (a *app) register() {
	username := a.readLine("Username")
	email := a.readLine("Email (optional)")
	password, ok := a.readPassword("Password")
	if !ok {
		return
	}

	result, err := a.accounts.Register(context.Background(), username, password, email)
	if err != nil {
		printAccountError(err)
		return
	}

	fmt.Println("Account created. Store these credentials somewhere safe,")
	fmt.Println("they are shown exactly once:")
	fmt.Printf("  recovery code: %s\n", result.RecoveryCode)
	fmt.Printf("  license key:   %s\n", result.LicenseKey)
}

func (a *app) forgotPassword() {
	username := a.readLine("Username")
	email := a.readLine("Email on the account")
	proof := a.readLine("Recovery code or license key")
	password, ok := a.readPassword("New password")
	if !ok {
		return
	}

	err := a.accounts.RecoverPassword(context.Background(), username, email, proof, password)
	if err != nil {
		printAccountError(err)
		return
	}
	fmt.Println("Password reset. You can log in now.")
}

func (a *app) forgotUsername() {
	email := a.readLine("Email on the account")
	proof := a.readLine("Recovery code or license key")

	username, err := a.accounts.RecoverUsername(context.Background(), email, proof)
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	fmt.Printf("Your username is: %s\n", username)
}

func (a *app) changePassword() {
	current, ok := a.readPassword("Current password")
	if !ok {
		return
	}
	next, ok := a.readPassword("New password")
	if !ok {
		return
	}

	id, err := a.currentID()
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	if err := a.accounts.ChangePassword(context.Background(), id, current, next); err != nil {
		printAccountError(err)
		return
	}
	fmt.Println("Password changed.")
}

func (a *app) rename() {
	next := a.readLine("New username")

	id, err := a.currentID()
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	if err := a.accounts.Rename(context.Background(), id, next); err != nil {
		printAccountError(err)
		return
	}
	a.current.Username = next
	fmt.Println("Username changed.")
}

func (a *app) regenerateRecoveryCode() {
	password, ok := a.readPassword("Password")
	if !ok {
		return
	}

	id, err := a.currentID()
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	code, err := a.accounts.RegenerateRecoveryCode(context.Background(), id, password)
	if err != nil {
		printAccountError(err)
		return
	}
	fmt.Println("The old recovery code no longer works. Your new code,")
	fmt.Println("shown exactly once:")
	fmt.Printf("  %s\n", code)
}

func (a *app) deleteSelf() {
	if a.readLine("Type DELETE to confirm") != "DELETE" {
		fmt.Println("Aborted")
		return
	}
	password, ok := a.readPassword("Password")
	if !ok {
		return
	}

	id, err := a.currentID()
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	if err := a.accounts.DeleteSelf(context.Background(), id, password); err != nil {
		printAccountError(err)
		return
	}
	a.current = nil
	fmt.Println("Account deleted.")
}

func (a *app) listAccounts() {
	profiles, err := a.accounts.List(context.Background())
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	fmt.Printf("%-20s %-6s %-9s %-8s %s\n", "USERNAME", "ROLE", "DISABLED", "FAILED", "EMAIL")
	for _, p := range profiles {
		fmt.Printf("%-20s %-6s %-9t %-8d %s\n", p.Username, p.Role, p.Disabled, p.FailedAttempts, p.Email)
	}
}

func (a *app) unlockAccount() {
	target := a.readLine("Username to unlock")
	if err := a.accounts.Unlock(context.Background(), target); err != nil {
		printAccountError(err)
		return
	}
	fmt.Printf("%s unlocked.\n", target)
}

func (a *app) adminResetPassword() {
	target := a.readLine("Username to reset")
	adminPassword, ok := a.readPassword("Your password")
	if !ok {
		return
	}
	next, ok := a.readPassword("New password for " + target)
	if !ok {
		return
	}

	id, err := a.currentID()
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	if err := a.accounts.AdminResetPassword(context.Background(), id, adminPassword, target, next); err != nil {
		printAccountError(err)
		return
	}
	fmt.Printf("Password for %s reset. The account is unlocked.\n", target)
}

func (a *app) adminDelete() {
	target := a.readLine("Username to delete")
	if a.readLine("Type DELETE to confirm") != "DELETE" {
		fmt.Println("Aborted")
		return
	}

	if err := a.accounts.AdminDelete(context.Background(), a.current.Username, target); err != nil {
		printAccountError(err)
		return
	}
	fmt.Printf("%s deleted.\n", target)
}

func (a *app) currentID() (uuid.UUID, error) {
	return uuid.Parse(a.current.ID)
}

// readLine prints a prompt and reads one trimmed line.
func (a *app) readLine(prompt string) string {
	fmt.Printf("%s: ", prompt)
	line, err := a.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return strings.TrimSpace(line)
}

// readPassword reads a password without echo.
func (a *app) readPassword(prompt string) (string, bool) {
	fmt.Printf("%s: ", prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Println(err.Error())
		return "", false
	}
	return string(pw), true
}

// printAccountError renders policy failures with their per-rule reasons;
// everything else prints as is.
func printAccountError(err error) {
	var weak *account.WeakPasswordError
	if errors.As(err, &weak) {
		fmt.Println("Password rejected:")
		for _, reason := range weak.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
		return
	}
	fmt.Println(err.Error())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
