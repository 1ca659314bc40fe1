// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/suryahanjaya/lenrag-sub000/internal/backend"
	"github.com/suryahanjaya/lenrag-sub000/internal/model"
)

// HandleDocs lists recent documents, or scans a folder with
// "docs scan URL".
func HandleDocs(app *App, args []string) error {
	if len(args) >= 2 && args[0] == "scan" {
		return scanFolder(app, args[1])
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.Cfg.Backend.RequestTimeout)
	defer cancel()

	if len(args) >= 1 && args[0] == "tree" {
		return printTree(ctx, app)
	}

	docs, err := app.Client.ListDocuments(ctx)
	if err != nil {
		return describeErr(err)
	}
	printDocuments(docs)
	return nil
}

// printTree renders the full folder hierarchy, indenting by depth.
func printTree(ctx context.Context, app *App) error {
	docs, err := app.Client.DocumentHierarchy(ctx)
	if err != nil {
		return describeErr(err)
	}

	children := make(map[string][]model.Document)
	for _, doc := range docs {
		children[doc.ParentID] = append(children[doc.ParentID], doc)
	}

	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		for _, doc := range children[parent] {
			indent := strings.Repeat("  ", depth)
			name := doc.Name
			if doc.IsFolder {
				name += "/"
			}
			fmt.Printf("  %s%s\n", indent, name)
			if doc.IsFolder {
				walk(doc.ID, depth+1)
			}
		}
	}
	walk("", 0)
	return nil
}

func scanFolder(app *App, folderURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	count := 0
	_, err := app.Client.StreamFolderScan(ctx, folderURL, backend.ScanCallbacks{
		OnDocuments: func(batch []model.Document) {
			count += len(batch)
			printDocuments(batch)
		},
		OnStatus: func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		},
	})
	if err != nil {
		return describeErr(err)
	}
	fmt.Fprintf(os.Stderr, "%d documents total\n", count)
	return nil
}

// HandleUpload streams a recursive folder ingestion, printing progress
// as it goes.
func HandleUpload(app *App, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: dora upload FOLDER_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	app.Container.SetChangeCallback(func() {
		if p := app.Container.Progress(); p != nil {
			fmt.Fprintf(os.Stderr, "\r%3d%% (%d/%d) %s\033[K", p.Percentage, p.Current, p.Total, p.Status)
		}
	})
	defer fmt.Fprintln(os.Stderr)

	err := app.Container.StartBulkUpload(ctx, args[0])
	if err != nil {
		return describeErr(err)
	}
	if p := app.Container.Progress(); p != nil {
		fmt.Printf("Done: %d/%d documents ingested\n", p.Current, p.Total)
	} else {
		fmt.Println("Done.")
	}
	return nil
}

func printDocuments(docs []model.Document) {
	for _, doc := range docs {
		kind := "file"
		if doc.IsFolder {
			kind = "dir "
		}
		fmt.Printf("  %s  %s  %s\n", kind,
			runewidth.FillRight(runewidth.Truncate(doc.Name, 50, "..."), 50),
			doc.ID)
	}
}

// describeErr rewrites taxonomy errors into actionable messages.
func describeErr(err error) error {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return errors.New("not signed in or session expired; run 'dora login'")
	case errors.Is(err, backend.ErrRateLimited):
		return errors.New("the backend is rate limiting requests; try again shortly")
	default:
		return err
	}
}
