package main

import (
	"context"
	"fmt"
)

// sendAlerts evaluates the alert rules for every parent and, unless dryRun is
// set, dispatches the pending digest emails.
func (cli *commandLine) sendAlerts(dryRun bool) error {
	ctx := context.Background()

	created, err := cli.alertSvc.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d alert(s) created\n", created)

	if dryRun {
		fmt.Println("dry run: skipping email dispatch")
		return nil
	}

	sent, err := cli.alertSvc.SendEmails(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d digest email(s) sent\n", sent)
	return nil
}
