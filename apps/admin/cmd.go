package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/trezcool/masomo-guardian/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type (
	otpPurger interface {
		Purge(ctx context.Context, olderThan time.Duration) (int64, error)
	}

	commandLine struct {
		db      *sql.DB
		usrRepo user.Repository
		otpSvc  otpPurger
	}
)

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run goose migration commands (up, down, status, redo, version...)")
	fmt.Println("  adduser -email EMAIL -name NAME [-admin|-teacher] - create or update a user; the password is prompted")
	fmt.Println("  resetpassword -email EMAIL - reset user's password; the password is prompted")
	fmt.Println("  purgeotp -days N - delete verification codes issued more than N days ago")
}

func promptPassword() ([]byte, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	return pwd, err
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's name.")
	addUserIsAdmin := addUserCmd.Bool("admin", false, "Give the user every admin role.")
	addUserIsTeacher := addUserCmd.Bool("teacher", false, "Give the user the teacher role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	purgeOTPCmd := flag.NewFlagSet("purgeotp", flag.ExitOnError)
	purgeOTPDays := purgeOTPCmd.Int("days", 90, "Retention in days.")

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *addUserName, *addUserEmail, string(pwd), *addUserIsAdmin, *addUserIsTeacher)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, string(pwd))

	case "purgeotp":
		if err := purgeOTPCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *purgeOTPDays < 1 {
			purgeOTPCmd.Usage()
			return errHelp
		}
		return cli.purgeOTP(ctx, *purgeOTPDays)

	default:
		cli.printUsage()
		return errHelp
	}
}
