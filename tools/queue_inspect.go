package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"pinger/infrastructure/storage"
	"time"

	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to the offline queue store")
	recipient := flag.String("to", "", "Only show pings waiting for this unique id")
	flag.Parse()

	db, err := storage.OpenBadgerReadOnly(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer func() { _ = db.Close() }()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Ping", "From", "To", "Created", "Expires"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	total := 0
	err = storage.ScanPendingPings(db, *recipient, func(p storage.StoredPing) error {
		expires := "never"
		if !p.ExpiresAt.IsZero() {
			expires = p.ExpiresAt.Format(time.DateTime)
		}
		table.Append([]string{
			p.Key,
			p.Ping.ID.String()[:8],
			p.Ping.From.String(),
			p.Ping.To.String(),
			p.Ping.CreatedAt.Format(time.DateTime),
			expires,
		})
		total++
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("%d pending ping(s)\n", total)
}
