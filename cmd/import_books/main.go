package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"library-lending/config"
	"library-lending/library"
	"library-lending/logger"
)

// catalogEntry is one book in the import file. ID is optional; entries
// without one get the next free ID.
type catalogEntry struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	CoverPath string `json:"cover_path"`
}

func readCatalog(path string) ([]catalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var entries []catalogEntry
	if err := jsoniter.ConfigFastest.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return entries, nil
}

// removeDatabase deletes the database file and its WAL companions.
func removeDatabase(path string) {
	fmt.Println("Cleaning up existing database files...")
	for _, file := range []string{path, path + "-shm", path + "-wal"} {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			fmt.Printf("Warning: Could not remove %s: %v\n", file, err)
		}
	}
	fmt.Println("Database cleanup complete.")
}

// importCatalog adds new entries as available books and updates known ids in
// place. It returns the success and error counts.
func importCatalog(ctx context.Context, manager *library.LibraryManager, entries []catalogEntry) (int, int) {
	successCount, errorCount := 0, 0
	for _, e := range entries {
		fmt.Printf("Importing: %s by %s... ", e.Title, e.Author)
		if strings.TrimSpace(e.Title) == "" {
			fmt.Println("ERROR - missing title")
			errorCount++
			continue
		}

		id := e.ID
		if id == 0 {
			next, err := manager.NextBookID(ctx)
			if err != nil {
				fmt.Printf("ERROR - %v\n", err)
				errorCount++
				continue
			}
			id = next
		}

		book := &library.Book{ID: id, Title: e.Title, Author: e.Author, Available: true, CoverPath: e.CoverPath}
		// Re-importing a known id only updates metadata; a book out on loan stays unavailable.
		existing, err := manager.Book(ctx, id)
		switch {
		case err == nil:
			book.Available = existing.Available
		case !errors.Is(err, library.ErrNotFound):
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			continue
		}
		if err := manager.AddBook(ctx, book); err != nil {
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			continue
		}
		fmt.Printf("SUCCESS (ID: %d)\n", id)
		successCount++
	}
	return successCount, errorCount
}

func main() {
	var (
		dbPath string
		reset  bool
	)
	cmd := &cobra.Command{
		Use:          "import_books CATALOG.json",
		Short:        "Load books from a JSON catalog into the library database",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Init(cfg.LogLevel)
			if dbPath == "" {
				dbPath = cfg.Database.Path
			}

			entries, err := readCatalog(args[0])
			if err != nil {
				return err
			}
			if reset {
				removeDatabase(dbPath)
			}

			manager, err := library.OpenLibraryManager(dbPath)
			if err != nil {
				return fmt.Errorf("creating database: %w", err)
			}
			defer manager.Close()

			fmt.Printf("Importing %d books from %s...\n", len(entries), args[0])
			successCount, errorCount := importCatalog(cmd.Context(), manager, entries)

			fmt.Printf("\nImport complete!\n")
			fmt.Printf("Successfully imported: %d books\n", successCount)
			fmt.Printf("Errors: %d\n", errorCount)

			if successCount > 0 {
				fmt.Println("\nCatalog:")
				books, err := manager.Books(cmd.Context())
				if err != nil {
					return fmt.Errorf("retrieving books: %w", err)
				}
				fmt.Printf("%-3s %-50s %-30s\n", "ID", "Title", "Author")
				fmt.Println(strings.Repeat("-", 85))
				for _, book := range books {
					fmt.Printf("%-3d %-50s %-30s\n", book.ID, truncateString(book.Title, 50), truncateString(book.Author, 30))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file (default $LIBRARY_DB_PATH)")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the existing database before importing")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
