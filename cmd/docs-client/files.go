package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/docsweb/docs-client/internal/events"
	"github.com/docsweb/docs-client/internal/logging"
	"github.com/docsweb/docs-client/internal/preview"
	"github.com/docsweb/docs-client/internal/register"
	"github.com/docsweb/docs-client/internal/storage"
	"github.com/docsweb/docs-client/internal/translate"
	"github.com/docsweb/docs-client/pkg/client"
)

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	cf := addCommonFlags(fs)
	username := fs.String("username", "", "Username (required)")
	email := fs.String("email", "", "Email address (required)")
	message := fs.String("message", "", "Note for the reviewing administrator")
	fs.Parse(args)

	a := setup(cf)
	defer logging.Sync()
	ctx, cancel := signalContext()
	defer cancel()

	u := register.User{
		Username: *username,
		Email:    *email,
		Message:  *message,
		Password: promptPassword("Password: "),
	}

	form := register.New(a.api, register.WithEvents(a.events))
	if err := form.Submit(ctx, u); err == nil {
		fmt.Println("Registration submitted. An administrator will review your request.")
		return
	}

	s := form.State()
	switch {
	case s.ErrorAlreadyExists:
		fatalf("Error: username %q is already used", u.Username)
	case s.ErrorRegistrationPending:
		fatalf("Error: a registration for %q is already pending review", u.Username)
	}
	if s.ErrorUsername {
		fmt.Fprintln(os.Stderr, "Invalid username")
	}
	if s.ErrorPassword {
		fmt.Fprintln(os.Stderr, "Invalid password")
	}
	if s.ErrorEmail {
		fmt.Fprintln(os.Stderr, "Invalid email")
	}
	fatalf("Registration failed.")
}

// openPreview parses "<doc-id> <file-id>" and opens the preview.
func openPreview(ctx context.Context, a *app, fs *flag.FlagSet) *preview.Preview {
	if fs.NArg() < 2 {
		fatalf("Usage: docs-client %s [flags] <doc-id> <file-id>", fs.Name())
	}
	p, err := preview.Open(ctx, a.api, fs.Arg(0), fs.Arg(1), preview.WithEvents(a.events))
	if err != nil {
		fatalf("Error: %s", client.MessageOr(err, err.Error()))
	}
	return p
}

func cmdFiles(args []string) {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	cf := addCommonFlags(fs)
	next := fs.Bool("next", false, "Move to the next file first")
	prev := fs.Bool("prev", false, "Move to the previous file first")
	save := fs.Bool("save", false, "Store the file content in the download backend")
	force := fs.Bool("force", false, "Overwrite a file already saved")
	fs.Parse(args)

	a := setup(cf)
	defer logging.Sync()
	ctx, cancel := signalContext()
	defer cancel()

	p := openPreview(ctx, a, fs)
	defer func() { p.Close() }()

	var err error
	switch {
	case *next:
		p, err = p.GoNext(ctx)
	case *prev:
		p, err = p.GoPrevious(ctx)
	}
	if err != nil {
		fatalf("Error: %v", err)
	}

	f, ok := p.File()
	if !ok {
		fatalf("File unavailable.")
	}

	fmt.Printf("File:          %s\n", f.ID)
	fmt.Printf("Name:          %s\n", f.Name)
	fmt.Printf("Type:          %s\n", f.MimeType)
	fmt.Printf("Size:          %s\n", humanize.Bytes(uint64(max(f.Size, 0))))
	fmt.Printf("URL:           %s\n", p.FileURL())
	fmt.Printf("Content URL:   %s\n", p.ContentURL())
	fmt.Printf("Inline view:   %t\n", p.CanDisplayPreview())
	fmt.Printf("Translatable:  %t\n", p.CanTranslate())

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE ID\tTYPE\tSIZE\t")
	for _, sib := range p.Files() {
		marker := ""
		if sib.ID == f.ID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sib.ID, sib.MimeType, humanize.Bytes(uint64(max(sib.Size, 0))), marker)
	}
	w.Flush()

	if *save {
		name := f.Name
		if name == "" {
			name = f.ID
		}
		loc := store(ctx, a, p.FileURL(), path.Join(p.DocumentID(), name), *force)
		fmt.Printf("Saved to %s\n", loc)
	}
}

func cmdLanguages(args []string) {
	fs := flag.NewFlagSet("languages", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)

	a := setup(cf)
	defer logging.Sync()
	ctx, cancel := signalContext()
	defer cancel()

	p := openPreview(ctx, a, fs)
	defer p.Close()

	in, err := p.TranslateInput(ctx)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if in.APINotConfigured {
		fmt.Println("Warning: the translation API is not configured on the server.")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME")
	for _, l := range in.Languages {
		fmt.Fprintf(w, "%s\t%s\n", l.Code, l.Name)
	}
	w.Flush()
}

func cmdTranslate(args []string) {
	fs := flag.NewFlagSet("translate", flag.ExitOnError)
	cf := addCommonFlags(fs)
	from := fs.String("from", "", "Source language code (required)")
	to := fs.String("to", "", "Target language code (required)")
	noDownload := fs.Bool("no-download", false, "Do not download the translated file")
	force := fs.Bool("force", false, "Overwrite a translation already saved")
	fs.Parse(args)

	a := setup(cf)
	defer logging.Sync()
	ctx, cancel := signalContext()
	defer cancel()

	p := openPreview(ctx, a, fs)
	defer p.Close()

	if !p.CanTranslate() {
		fatalf("Error: this file cannot be translated.")
	}
	in, err := p.TranslateInput(ctx)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if in.APINotConfigured {
		fatalf("Error: the translation API is not configured on the server.")
	}

	ch := a.events.Subscribe()
	defer a.events.Unsubscribe(ch)
	go printProgress(ch)

	d := translate.Open(ctx, a.api, in,
		translate.WithPollInterval(a.cfg.PollInterval),
		translate.WithEvents(a.events))
	defer d.Close()

	if err := d.Start(ctx, *from, *to); err != nil {
		if errors.Is(err, translate.ErrMissingLanguage) {
			fatalf("Error: -from and -to are required")
		}
		fatalf("Error: %s", d.State().Error)
	}

	if err := d.Wait(ctx); err != nil {
		var je *translate.JobError
		switch {
		case errors.As(err, &je):
			fatalf("Translation failed: %s", je.Message)
		case errors.Is(err, context.Canceled):
			fatalf("Translation cancelled.")
		}
		fatalf("Error: %v", err)
	}

	u, ok := d.DownloadURL()
	if !ok {
		fatalf("Translation finished without a result.")
	}
	if *noDownload {
		fmt.Println(u)
		return
	}

	s := d.State()
	name := fmt.Sprintf("%s_%s", in.File.ID, s.TargetLanguage)
	if s.FileType != "" {
		name += "." + s.FileType
	}
	loc := store(ctx, a, u, path.Join(p.DocumentID(), name), *force)
	fmt.Printf("Translated file saved to %s\n", loc)
}

func printProgress(ch chan events.Event) {
	for ev := range ch {
		if ev.Component != events.ComponentTranslate {
			continue
		}
		switch ev.Kind {
		case events.KindStarted:
			fmt.Println("Translation started...")
		case events.KindProgress:
			text := ev.Message
			if text == "" {
				text = translate.Label(ev.Code)
			}
			fmt.Printf("  %s (%d)\n", text, ev.Code)
		}
	}
}

// errExists is returned by saveDownload when the key is taken and
// overwriting was not requested.
var errExists = errors.New("already stored")

// store downloads rawURL into the configured backend and returns where it
// was written.
func store(ctx context.Context, a *app, rawURL, key string, force bool) string {
	backend, err := storage.New(ctx, a.cfg)
	if err != nil {
		fatalf("Error: %v", err)
	}
	defer backend.Close()

	loc, err := saveDownload(ctx, backend, a.api, rawURL, key, force)
	if errors.Is(err, errExists) {
		fatalf("%s already exists, use -force to overwrite", loc)
	}
	if err != nil {
		fatalf("Error: %s", client.MessageOr(err, err.Error()))
	}
	return loc
}

// saveDownload streams rawURL into backend. A file name sent by the server
// replaces the one in key. An existing object is kept unless force is set;
// the location is returned either way.
func saveDownload(ctx context.Context, backend storage.Backend, api *client.Client, rawURL, key string, force bool) (string, error) {
	dl, err := api.Download(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer dl.Body.Close()

	if dl.FileName != "" {
		key = path.Join(path.Dir(key), path.Base(dl.FileName))
	}
	if !force {
		exists, err := backend.ObjectExists(ctx, key)
		if err != nil {
			return "", err
		}
		if exists {
			return backend.Location(key), errExists
		}
	}
	if err := backend.PutObject(ctx, key, dl.Body, dl.Size); err != nil {
		return "", err
	}
	logging.Info("download stored",
		logging.String("backend", backend.Type()),
		logging.String("key", key))
	return backend.Location(key), nil
}
