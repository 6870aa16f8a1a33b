// Package main runs the passkeeper interactive shell: a thin front end
// over the vault session for creating, unlocking, and managing
// credential records.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/vkarpenko/passkeeper/internal/config"
	"github.com/vkarpenko/passkeeper/internal/kdf"
	"github.com/vkarpenko/passkeeper/internal/logger"
	"github.com/vkarpenko/passkeeper/internal/models"
	"github.com/vkarpenko/passkeeper/internal/passgen"
	"github.com/vkarpenko/passkeeper/internal/session"
	"github.com/vkarpenko/passkeeper/internal/store"
	"github.com/vkarpenko/passkeeper/internal/vaultcrypt"
)

var (
	version   string
	buildDate string
)

func main() {
	options := config.Parse()

	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	if version != "" {
		fmt.Printf("passkeeper %s (built %s)\n", version, buildDate)
	}

	vaultPath, err := resolveVaultPath(options.VaultPath)
	if err != nil {
		zapLogger.Fatal("cannot resolve vault path", zap.Error(err))
	}

	idleTimeout, err := time.ParseDuration(options.IdleTimeout)
	if err != nil {
		zapLogger.Fatal("invalid idle timeout", zap.Error(err))
	}

	if err := ensureVault(vaultPath, options, zapLogger); err != nil {
		zapLogger.Fatal("cannot create vault", zap.Error(err))
	}

	sess, err := session.Open(vaultPath, session.Config{IdleTimeout: idleTimeout}, zapLogger)
	if err != nil {
		if errors.Is(err, store.ErrLockConflict) {
			fmt.Fprintln(os.Stderr, "vault is in use by another process (stale lock? remove the .lock file)")
			os.Exit(1)
		}
		zapLogger.Fatal("cannot open vault", zap.Error(err))
	}
	defer func() { _ = sess.Close() }()

	if !unlockWithRetries(sess) {
		fmt.Fprintln(os.Stderr, "too many failed attempts")
		os.Exit(1)
	}

	repl(sess)
}

// resolveVaultPath falls back to ~/.passkeeper.vault when no path is
// configured.
func resolveVaultPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".passkeeper.vault"), nil
}

// ensureVault creates a fresh vault when none exists at path.
func ensureVault(path string, options *config.Options, zapLogger *zap.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	fmt.Printf("No vault found at %s — creating one.\n", path)
	password, err := promptNewPassword()
	if err != nil {
		return err
	}

	params := kdf.Params{Algorithm: options.KDF, Iterations: options.KDFIterations}
	return session.Create(path, password, params, zapLogger)
}

func promptNewPassword() (string, error) {
	for {
		password, err := readPassword("New master password: ")
		if err != nil {
			return "", err
		}
		if password == "" {
			fmt.Println("Master password must not be empty")
			continue
		}
		if score, label := passgen.Strength(password); score < 3 {
			fmt.Printf("Warning: master password strength is %q\n", label)
		}
		confirm, err := readPassword("Repeat master password: ")
		if err != nil {
			return "", err
		}
		if password != confirm {
			fmt.Println("Passwords do not match, try again")
			continue
		}
		return password, nil
	}
}

func unlockWithRetries(sess *session.Session) bool {
	for attempt := 0; attempt < 3; attempt++ {
		password, err := readPassword("Master password: ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot read password:", err)
			return false
		}
		err = sess.Unlock(context.Background(), password)
		if err == nil {
			return true
		}
		if errors.Is(err, vaultcrypt.ErrAuthentication) {
			fmt.Println("Wrong master password")
			continue
		}
		fmt.Fprintln(os.Stderr, "unlock failed:", err)
		return false
	}
	return false
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// repl runs the interactive shell loop, accepting commands to manage
// credentials.
func repl(sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("passkeeper> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		if sess.State() != session.Unlocked && args[0] != "unlock" && args[0] != "exit" && args[0] != "help" {
			fmt.Println("Session is locked. Type 'unlock' first.")
			continue
		}

		switch args[0] {
		case "help":
			fmt.Println("Commands: help, add, list [query], show <id>, edit <id>, rm <id>,")
			fmt.Println("          gen [length], phrase [words], export <file>, import <file>,")
			fmt.Println("          passwd, save, lock, unlock, exit")
		case "add":
			cmdAdd(sess, scanner)
		case "list":
			cmdList(sess, strings.Join(args[1:], " "))
		case "show":
			if len(args) < 2 {
				fmt.Println("Usage: show <id>")
				continue
			}
			cmdShow(sess, args[1])
		case "edit":
			if len(args) < 2 {
				fmt.Println("Usage: edit <id>")
				continue
			}
			cmdEdit(sess, scanner, args[1])
		case "rm":
			if len(args) < 2 {
				fmt.Println("Usage: rm <id>")
				continue
			}
			if err := sess.DeleteRecord(args[1]); err != nil {
				fmt.Println("delete failed:", err)
			} else {
				fmt.Println("Record deleted (run 'save' to persist)")
			}
		case "gen":
			cmdGen(args[1:])
		case "phrase":
			cmdPhrase(args[1:])
		case "export":
			if len(args) < 2 {
				fmt.Println("Usage: export <file>")
				continue
			}
			cmdExport(sess, args[1])
		case "import":
			if len(args) < 2 {
				fmt.Println("Usage: import <file>")
				continue
			}
			cmdImport(sess, args[1])
		case "passwd":
			cmdPasswd(sess)
		case "save":
			if err := sess.Flush(context.Background()); err != nil {
				fmt.Println("save failed:", err)
			} else {
				fmt.Println("Saved")
			}
		case "lock":
			sess.Lock()
			fmt.Println("Session locked")
		case "unlock":
			if sess.State() == session.Unlocked {
				fmt.Println("Already unlocked")
				continue
			}
			unlockWithRetries(sess)
		case "exit":
			if err := sess.Flush(context.Background()); err != nil && !errors.Is(err, session.ErrSessionLocked) {
				fmt.Println("save failed:", err)
			}
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func promptLine(scanner *bufio.Scanner, prompt string) string {
	fmt.Print(prompt)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

func cmdAdd(sess *session.Session, scanner *bufio.Scanner) {
	rec := models.Credential{
		Title:    promptLine(scanner, "Title: "),
		Username: promptLine(scanner, "Username: "),
		Category: promptLine(scanner, "Category: "),
		Notes:    promptLine(scanner, "Notes: "),
	}

	secret := promptLine(scanner, "Secret (empty to generate): ")
	if secret == "" {
		generated, err := passgen.Generate(passgen.DefaultOptions())
		if err != nil {
			fmt.Println("generate failed:", err)
			return
		}
		secret = generated
		fmt.Println("Generated:", secret)
	}
	rec.Secret = secret

	res, err := sess.CreateRecord(rec)
	if err != nil {
		fmt.Println("add failed:", err)
		return
	}
	if res.Duplicate != nil {
		existing := res.Duplicate.Existing
		fmt.Printf("Looks like a duplicate of %q (%s), id %s\n", existing.Title, existing.Username, existing.ID)
		if promptLine(scanner, "Add anyway? [y/N]: ") != "y" {
			fmt.Println("Not added")
			return
		}
		created, err := sess.ForceCreateRecord(rec)
		if err != nil {
			fmt.Println("add failed:", err)
			return
		}
		fmt.Println("Added with id", created.ID)
		return
	}
	fmt.Println("Added with id", res.Record.ID)
}

func cmdList(sess *session.Session, query string) {
	records, err := sess.List(query)
	if err != nil {
		fmt.Println("list failed:", err)
		return
	}
	if len(records) == 0 {
		fmt.Println("No records")
		return
	}
	for _, rec := range records {
		fmt.Printf("%s  %-24s %-20s %s\n", rec.ID, rec.Title, rec.Username, rec.Category)
	}
}

func cmdShow(sess *session.Session, id string) {
	rec, err := sess.Read(id)
	if err != nil {
		fmt.Println("show failed:", err)
		return
	}
	fmt.Printf("Title:    %s\nUsername: %s\nSecret:   %s\nCategory: %s\nNotes:    %s\nModified: %s\n",
		rec.Title, rec.Username, rec.Secret, rec.Category, rec.Notes, rec.ModifiedAt.Format(time.RFC3339))
}

func cmdEdit(sess *session.Session, scanner *bufio.Scanner, id string) {
	rec, err := sess.Read(id)
	if err != nil {
		fmt.Println("edit failed:", err)
		return
	}

	var upd session.Update
	if v := promptLine(scanner, fmt.Sprintf("Title [%s]: ", rec.Title)); v != "" {
		upd.Title = &v
	}
	if v := promptLine(scanner, fmt.Sprintf("Username [%s]: ", rec.Username)); v != "" {
		upd.Username = &v
	}
	if v := promptLine(scanner, "Secret (empty to keep): "); v != "" {
		upd.Secret = &v
	}
	if v := promptLine(scanner, fmt.Sprintf("Category [%s]: ", rec.Category)); v != "" {
		upd.Category = &v
	}
	if v := promptLine(scanner, "Notes (empty to keep): "); v != "" {
		upd.Notes = &v
	}

	if _, err := sess.UpdateRecord(id, upd); err != nil {
		fmt.Println("edit failed:", err)
		return
	}
	fmt.Println("Record updated (run 'save' to persist)")
}

func cmdGen(args []string) {
	opts := passgen.DefaultOptions()
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("Usage: gen [length]")
			return
		}
		opts.Length = n
	}
	password, err := passgen.Generate(opts)
	if err != nil {
		fmt.Println("generate failed:", err)
		return
	}
	_, label := passgen.Strength(password)
	fmt.Printf("%s  (%s)\n", password, label)
}

func cmdPhrase(args []string) {
	words := 6
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("Usage: phrase [words]")
			return
		}
		words = n
	}
	phrase, err := passgen.Passphrase(words, "-")
	if err != nil {
		fmt.Println("generate failed:", err)
		return
	}
	fmt.Println(phrase)
}

func cmdExport(sess *session.Session, path string) {
	records, err := sess.ExportPlain()
	if err != nil {
		fmt.Println("export failed:", err)
		return
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		fmt.Println("export failed:", err)
		return
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		fmt.Println("export failed:", err)
		return
	}
	fmt.Printf("Exported %d records to %s — the file is PLAINTEXT, delete it after use\n", len(records), path)
}

func cmdImport(sess *session.Session, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println("import failed:", err)
		return
	}
	var records []models.Credential
	if err := json.Unmarshal(data, &records); err != nil {
		fmt.Println("import failed:", err)
		return
	}

	added, skipped, err := sess.ImportRecords(records)
	if err != nil {
		fmt.Println("import failed:", err)
		return
	}
	fmt.Printf("Imported %d records\n", added)
	for _, dup := range skipped {
		fmt.Printf("Skipped duplicate of %q (%s)\n", dup.Existing.Title, dup.Existing.Username)
	}
	if added > 0 {
		fmt.Println("Run 'save' to persist")
	}
}

func cmdPasswd(sess *session.Session) {
	oldPassword, err := readPassword("Current master password: ")
	if err != nil {
		fmt.Println("cannot read password:", err)
		return
	}
	newPassword, err := promptNewPassword()
	if err != nil {
		fmt.Println("cannot read password:", err)
		return
	}
	if err := sess.ChangeMasterPassword(context.Background(), oldPassword, newPassword); err != nil {
		if errors.Is(err, vaultcrypt.ErrAuthentication) {
			fmt.Println("Wrong master password")
			return
		}
		fmt.Println("change failed:", err)
		return
	}
	fmt.Println("Master password changed")
}
