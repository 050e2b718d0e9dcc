package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

func main() {
	cfg := LoadConfig()

	db, err := InitDraftDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init draft database: %v", err)
	}
	defer db.Close()

	os.MkdirAll(cfg.ExportOutputDir, 0755)

	client := NewAPIClient(cfg)
	notifier := NewNotifier(cfg)

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "drafts":
		drafts, err := ListDrafts(db, time.Now())
		if err != nil {
			log.Fatalf("Error listing drafts: %v", err)
		}
		for _, d := range drafts {
			fmt.Printf("%s\t%s\t%s\n", d.SavedAt.Format("2006-01-02 15:04"), d.Type, d.Key)
		}

	case "purge":
		n, err := PurgeExpiredDrafts(db, time.Now())
		if err != nil {
			log.Fatalf("Error purging drafts: %v", err)
		}
		log.Printf("Purged %d expired drafts", n)

	case "list":
		records, err := client.ListVerificaciones(0, 100)
		if err != nil {
			log.Fatalf("Error listing verifications: %v", err)
		}
		for _, v := range records {
			fmt.Printf("%d\t%s\t%s\t%s\t%d muestras\n",
				v.ID, v.NumeroVerificacion, v.FechaVerificacion, v.Cliente, len(v.Muestras))
		}

	case "show":
		v, err := client.GetVerificacion(argID())
		if err != nil {
			log.Fatalf("Error loading verification: %v", err)
		}
		fmt.Printf("#%d %s  cliente=%s  fecha=%s\n", v.ID, v.NumeroVerificacion, v.Cliente, v.FechaVerificacion)
		for _, m := range v.Muestras {
			fmt.Printf("  %d. %s  d=%s/%s  tol=%.2f%% %s  pesar=%s\n",
				m.ItemNumero, m.CodigoLem, m.Diametro1MM, m.Diametro2MM,
				m.ToleranciaPorcentaje, m.AceptacionDiametro, m.Pesar)
		}

	case "delete":
		id := argID()
		if err := client.DeleteVerificacion(id); err != nil {
			log.Fatalf("Error deleting verification %d: %v", id, err)
		}
		log.Printf("Deleted verification %d", id)

	case "export":
		id := argID()
		path, err := DownloadExcel(client, id, "", cfg.ExportOutputDir)
		if err != nil {
			log.Fatalf("Error exporting verification %d: %v", id, err)
		}
		log.Printf("Exported to %s", path)
		notifier.Success(fmt.Sprintf("Excel de verificación %d exportado", id))

	case "generate":
		id := argID()
		if err := client.GenerateExcel(id); err != nil {
			log.Fatalf("Error generating Excel for verification %d: %v", id, err)
		}
		log.Printf("Generated Excel for verification %d", id)

	case "serve":
		StartDraftPurgeScheduler(cfg, db)
		log.Println("Starting verifdesk...")
		select {}

	default:
		usage()
	}
}

func argID() int64 {
	if len(os.Args) < 3 {
		usage()
	}
	id, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil {
		log.Fatalf("Invalid id '%s': %v", os.Args[2], err)
	}
	return id
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: verifdesk <command> [args]

  drafts          list fresh local drafts
  purge           remove expired local drafts
  list            list verification records
  show <id>       print one verification record
  delete <id>     delete a verification record
  export <id>     download the spreadsheet artifact
  generate <id>   trigger server-side spreadsheet generation
  serve           run with the scheduled draft purge`)
	os.Exit(2)
}
