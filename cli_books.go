package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"library-lending/library"
)

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog",
	}
	cmd.AddCommand(newBookAddCmd(a), newBookListCmd(a), newBookRemoveCmd(a))
	return cmd
}

func newBookAddCmd(a *app) *cobra.Command {
	var (
		id                   int64
		title, author, cover string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book, or update the book with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if id == 0 {
				next, err := a.manager.NextBookID(ctx)
				if err != nil {
					return err
				}
				id = next
			}
			if cover != "" {
				if _, err := os.Stat(filepath.Clean(cover)); err != nil {
					fmt.Printf("Cover error: %v. Adding book without cover.\n", err)
					cover = ""
				}
			}

			b := &library.Book{ID: id, Title: title, Author: author, Available: true, CoverPath: cover}
			if existing, err := a.manager.Book(ctx, id); err == nil {
				b.Available = existing.Available
			}
			if err := a.manager.AddBook(ctx, b); err != nil {
				return fmt.Errorf("adding book: %w", err)
			}
			fmt.Printf("Saved book ID %d: %s by %s\n", b.ID, b.Title, b.Author)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "book ID (default next free ID)")
	cmd.Flags().StringVar(&title, "title", "", "book title")
	cmd.Flags().StringVar(&author, "author", "", "book author")
	cmd.Flags().StringVar(&cover, "cover", "", "path to a cover image")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func newBookListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all books with their current borrower",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			books, err := a.manager.Books(ctx)
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Println("No books in library.")
				return nil
			}

			fmt.Printf("%-5s %-30s %-25s %-10s %s\n", "ID", "Title", "Author", "Available", "Borrower")
			fmt.Println(strings.Repeat("-", 95))
			for _, b := range books {
				borrowerInfo := "None"
				if id, ok, err := a.manager.Loans().CurrentBorrowerID(ctx, b.ID); err != nil {
					return err
				} else if ok {
					borrowerInfo = fmt.Sprintf("ID: %d", id)
					if m, err := a.manager.Member(ctx, id); err == nil {
						borrowerInfo = fmt.Sprintf("%s (ID: %d)", m.Name, m.ID)
					}
				}
				fmt.Printf("%-5d %-30s %-25s %-10s %s\n",
					b.ID,
					truncateString(b.Title, 30),
					truncateString(b.Author, 25),
					yesNo(b.Available),
					truncateString(borrowerInfo, 30))
			}
			return nil
		},
	}
}

func newBookRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove BOOK_ID",
		Short: "Remove a book that is not on loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			if err := a.manager.RemoveBook(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Removed book ID %d\n", id)
			return nil
		},
	}
}
