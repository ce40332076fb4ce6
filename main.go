package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-lending/config"
	"library-lending/library"
	"library-lending/logger"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	cfg     *config.Config
	dbPath  string
	manager *library.LibraryManager
}

func (a *app) open() error {
	a.cfg = config.Load()
	logger.Init(a.cfg.LogLevel)

	path := a.dbPath
	if path == "" {
		path = a.cfg.Database.Path
	}
	manager, err := library.OpenLibraryManager(path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.manager = manager
	logger.Debug("Database ready", "path", path)
	return nil
}

func (a *app) close() {
	if a.manager == nil {
		return
	}
	if err := a.manager.Close(); err != nil {
		logger.Error("Error closing database", "error", err)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Library lending: catalog, members, loans and fines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database file (default $LIBRARY_DB_PATH)")

	root.AddCommand(
		newBookCmd(a),
		newMemberCmd(a),
		newBorrowCmd(a),
		newReturnCmd(a),
		newFineCmd(a),
		newFinesCmd(a),
		newReportCmd(a),
	)
	return root
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readPassword securely reads a password with masking. Piped input is read
// as a plain line.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

// authenticate prompts for the member's password and returns the member with
// their loans loaded.
func (a *app) authenticate(cmd *cobra.Command, memberID int64) (*library.Member, error) {
	password, err := readPassword("Enter your password: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	m, err := a.manager.AuthenticateMember(cmd.Context(), memberID, password)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return m, nil
}

func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, s)
	}
	return id, nil
}

// truncateString shortens s to maxLength characters, counted in runes.
func truncateString(s string, maxLength int) string {
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(r[:maxLength])
	}
	return string(r[:maxLength-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
