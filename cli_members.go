package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"library-lending/library"
)

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage members",
	}
	cmd.AddCommand(
		newMemberAddCmd(a),
		newMemberListCmd(a),
		newMemberShowCmd(a),
		newMemberRemoveCmd(a),
		newMemberPasswdCmd(a),
	)
	return cmd
}

func promptNewPassword(prompt string) (string, error) {
	password, err := readPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return library.HashPassword(password)
}

func newMemberAddCmd(a *app) *cobra.Command {
	var (
		id   int64
		name string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if id == 0 {
				next, err := a.manager.NextMemberID(ctx)
				if err != nil {
					return err
				}
				id = next
			}
			hash, err := promptNewPassword(fmt.Sprintf("Enter password for %s: ", name))
			if err != nil {
				return err
			}
			if err := a.manager.RegisterMember(ctx, &library.Member{ID: id, Name: name, Password: hash}); err != nil {
				return fmt.Errorf("registering member: %w", err)
			}
			fmt.Printf("Added member '%s' with ID %d\n", name, id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "member ID (default next free ID)")
	cmd.Flags().StringVar(&name, "name", "", "member name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newMemberListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members and their last computed balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := a.manager.Members(cmd.Context())
			if err != nil {
				return err
			}
			if len(members) == 0 {
				fmt.Println("No members registered.")
				return nil
			}

			fmt.Printf("%-5s %-30s %10s\n", "ID", "Name", "Balance")
			fmt.Println(strings.Repeat("-", 47))
			for _, m := range members {
				fmt.Printf("%-5d %-30s %10s\n", m.ID, truncateString(m.Name, 30), "$"+m.Balance.StringFixed(2))
			}
			return nil
		},
	}
}

func newMemberShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show MEMBER_ID",
		Short: "Show a member's loans and current fines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			m, err := a.manager.Member(ctx, id)
			if err != nil {
				return err
			}
			if err := a.manager.UpdateMemberFines(ctx, m); err != nil {
				return err
			}

			fmt.Printf("%s (ID: %d)  balance $%s\n", m.Name, m.ID, m.Balance.StringFixed(2))
			if len(m.Loans) == 0 {
				fmt.Println("No loans on record.")
				return nil
			}

			today := a.manager.Today()
			fmt.Printf("%-5s %-30s %-10s %-10s %-10s %8s\n", "Book", "Title", "Borrowed", "Due", "Returned", "Fine")
			fmt.Println(strings.Repeat("-", 80))
			for _, bb := range m.Loans {
				returned := "-"
				if bb.ReturnDate != nil {
					returned = bb.ReturnDate.Format(library.DateLayout)
				}
				fine := ""
				if bb.IsOverdue(today) {
					fine = "$" + a.manager.CalculateFine(bb).StringFixed(2)
				}
				fmt.Printf("%-5d %-30s %-10s %-10s %-10s %8s\n",
					bb.Book.ID,
					truncateString(bb.Book.Title, 30),
					bb.BorrowDate.Format(library.DateLayout),
					bb.DueDate.Format(library.DateLayout),
					returned,
					fine)
			}
			return nil
		},
	}
}

func newMemberRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove MEMBER_ID",
		Short: "Remove a member with no books out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			if err := a.manager.RemoveMember(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Removed member ID %d\n", id)
			return nil
		},
	}
}

func newMemberPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd MEMBER_ID",
		Short: "Reset a member's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			m, err := a.manager.Member(ctx, id)
			if err != nil {
				return fmt.Errorf("member with ID %d not found", id)
			}
			password, err := readPassword(fmt.Sprintf("Enter new password for %s (ID: %d): ", m.Name, id))
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			if password == "" {
				return fmt.Errorf("password cannot be empty")
			}
			if err := a.manager.ResetMemberPassword(ctx, id, password); err != nil {
				return fmt.Errorf("resetting password: %w", err)
			}
			fmt.Printf("Password successfully reset for %s (ID: %d)\n", m.Name, id)
			return nil
		},
	}
}
