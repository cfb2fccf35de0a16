package main

import (
	"context"
	"time"
)

func (cli *commandLine) purgeOTP(ctx context.Context, days int) error {
	n, err := cli.otpSvc.Purge(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}
	logger.Printf("deleted %d verification code(s) older than %d day(s)\n", n, days)
	return nil
}
