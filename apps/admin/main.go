package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/otp"
	"github.com/trezcool/masomo-guardian/storage/database"
	sqlxrepos "github.com/trezcool/masomo-guardian/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	ctx := context.Background()
	errAndDie(database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(conf)
	errAndDie(err)
	errAndDie(database.Ping(ctx, db.DB))

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: sqlxrepos.NewUserRepository(db),
		otpSvc:  otp.NewService(conf, otp.Deps{Repo: sqlxrepos.NewOTPRepository(db)}),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
