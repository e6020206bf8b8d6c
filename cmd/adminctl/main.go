// Command adminctl provisions the first administrator account out-of-band:
// the HTTP create-user endpoint is role-gated, so the initial admin cannot
// be created through the API itself.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dsmirnov82/authuser/internal/logging"
	"github.com/dsmirnov82/authuser/internal/server/config"
	"github.com/dsmirnov82/authuser/internal/server/models"
	"github.com/dsmirnov82/authuser/internal/server/repositories/repomanager"
	"github.com/dsmirnov82/authuser/internal/server/services"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func getSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func getPassword(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Enter password: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	db, err := repomanager.Open(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	authService := services.NewAuthService(db, rm, cfg, logger)
	usersService := services.NewUsersService(db, rm, authService, logger)

	reader := bufio.NewReader(os.Stdin)
	email, err := getSimpleText(reader, "Administrator email", os.Stdout)
	if err != nil {
		return err
	}
	name, err := getSimpleText(reader, "Display name", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	out, err := usersService.Create(ctx, services.CreateUserParams{
		Name:     name,
		Email:    email,
		Password: string(password),
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if _, err := usersService.AddRole(ctx, out.User.ID, models.RoleAdmin); err != nil {
		return fmt.Errorf("grant admin: %w", err)
	}

	fmt.Printf("Administrator %s created (id %s)\n", out.User.Email, out.User.ID)
	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
